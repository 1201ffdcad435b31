package messaging

import (
	"fmt"
	"strings"
	"time"
)

type RabbitMQConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	VHost             string
	Exchange          string
	RetryCount        int
	RetryDelay        time.Duration
	ConnectionTimeout time.Duration
	// MaxRedeliveries bounds how often a failed message is republished
	// before it is dropped.
	MaxRedeliveries int
}

func DefaultRabbitMQConfig() RabbitMQConfig {
	return RabbitMQConfig{
		Host:              "localhost",
		Port:              5672,
		Username:          "guest",
		Password:          "guest",
		VHost:             "/",
		Exchange:          "order.events",
		RetryCount:        3,
		RetryDelay:        5 * time.Second,
		ConnectionTimeout: 30 * time.Second,
		MaxRedeliveries:   3,
	}
}

func (c RabbitMQConfig) ConnectionURL() string {
	vhost := c.VHost
	if vhost != "/" && !strings.HasPrefix(vhost, "/") {
		vhost = "/" + vhost
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		c.Username, c.Password, c.Host, c.Port, vhost)
}
