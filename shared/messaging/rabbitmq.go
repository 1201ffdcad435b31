package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

var ErrNotConnected = errors.New("there is no connection to RabbitMQ")

type RabbitMQClient struct {
	config     RabbitMQConfig
	logger     zerolog.Logger
	connection *amqp.Connection
	channel    *amqp.Channel
	mu         sync.RWMutex
	isClosing  bool
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewRabbitMQClient does not install signal handlers; the owning command
// closes the client on shutdown.
func NewRabbitMQClient(config RabbitMQConfig, logger zerolog.Logger) *RabbitMQClient {
	ctx, cancel := context.WithCancel(context.Background())

	return &RabbitMQClient{
		config: config,
		logger: logger.With().Str("component", "rabbitmq").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (r *RabbitMQClient) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	for i := 0; i < r.config.RetryCount; i++ {
		r.connection, err = amqp.DialConfig(r.config.ConnectionURL(), amqp.Config{
			Dial: amqp.DefaultDial(r.config.ConnectionTimeout),
		})
		if err != nil {
			r.logger.Warn().Err(err).Int("attempt", i+1).Int("max_attempts", r.config.RetryCount).Msg("rabbitmq connection error")
			if i < r.config.RetryCount-1 {
				time.Sleep(r.config.RetryDelay)
				continue
			}
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}

		r.channel, err = r.connection.Channel()
		if err != nil {
			r.connection.Close()
			return fmt.Errorf("failed to open RabbitMQ channel: %w", err)
		}

		err = r.channel.ExchangeDeclare(
			r.config.Exchange, // name
			"topic",           // type
			true,              // durable
			false,             // auto-deleted
			false,             // internal
			false,             // no-wait
			nil,               // arguments
		)
		if err != nil {
			r.channel.Close()
			r.connection.Close()
			return fmt.Errorf("failed to declare exchange: %w", err)
		}

		r.logger.Info().Str("host", r.config.Host).Str("exchange", r.config.Exchange).Msg("connected to rabbitmq")

		go r.handleReconnection(r.connection)

		return nil
	}

	return err
}

func (r *RabbitMQClient) handleReconnection(conn *amqp.Connection) {
	notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

	select {
	case err := <-notifyClose:
		r.mu.RLock()
		closing := r.isClosing
		r.mu.RUnlock()
		if closing {
			return
		}
		r.logger.Warn().Interface("reason", err).Msg("rabbitmq connection lost, reconnecting")
		time.Sleep(2 * time.Second)
		if reconnectErr := r.Connect(); reconnectErr != nil {
			r.logger.Error().Err(reconnectErr).Msg("rabbitmq reconnect failed")
		}
	case <-r.ctx.Done():
	}
}

func (r *RabbitMQClient) Channel() *amqp.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channel
}

func (r *RabbitMQClient) Exchange() string {
	return r.config.Exchange
}

// Done is closed once the client is shut down.
func (r *RabbitMQClient) Done() <-chan struct{} {
	return r.ctx.Done()
}

func (r *RabbitMQClient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isClosing {
		return nil
	}

	r.isClosing = true
	r.cancel()

	var errs []error
	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("channel close error: %w", err))
		}
	}
	if r.connection != nil {
		if err := r.connection.Close(); err != nil {
			errs = append(errs, fmt.Errorf("connection close error: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		r.logger.Error().Err(err).Msg("rabbitmq close failed")
		return err
	}
	r.logger.Info().Msg("rabbitmq connection closed")
	return nil
}

func (r *RabbitMQClient) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.connection != nil && !r.connection.IsClosed()
}
