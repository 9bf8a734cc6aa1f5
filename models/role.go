package models

type UserRole string

const (
	RoleAdmin UserRole = "admin" // Quản trị hệ thống
	// RoleService là các backend nội bộ được phép tạo thông báo.
	RoleService UserRole = "service"
	RoleUser    UserRole = "user"
)
