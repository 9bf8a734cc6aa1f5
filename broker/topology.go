// Package broker quản lý kết nối RabbitMQ cho hàng đợi thông báo bền vững.
package broker

import (
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName   = "notifications"
	ExchangeKind   = amqp.ExchangeTopic
	QueueName      = "notification_processor"
	BindingPattern = "user.*.notification"
	ContentType    = "application/json"
)

// RoutingKey trả về routing key của một người nhận: user.<id>.notification
func RoutingKey(userID uuid.UUID) string {
	return fmt.Sprintf("user.%s.notification", userID)
}

func declareExchange(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ExchangeName, ExchangeKind, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeName, err)
	}
	return nil
}

// declareQueue khai báo queue bền và bind với pattern wildcard.
// Đổi dead-letter exchange của một queue đã tồn tại sẽ bị broker từ chối (PRECONDITION_FAILED).
func declareQueue(ch *amqp.Channel, deadLetterExchange string) error {
	var args amqp.Table
	if deadLetterExchange != "" {
		args = amqp.Table{"x-dead-letter-exchange": deadLetterExchange}
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueName, err)
	}
	if err := ch.QueueBind(QueueName, BindingPattern, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", QueueName, ExchangeName, err)
	}
	return nil
}
