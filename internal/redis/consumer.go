package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kizs/smalltv-cameras/pkg/models"
)

// DeviceController is the slice of the device manager the command bus drives
type DeviceController interface {
	ForceRefresh(id string) error
	SetBrightness(ctx context.Context, id string, percent int) error
	SetMode(ctx context.Context, id, mode string) error
	ApplySettings(ctx context.Context, id string, update models.SettingsUpdate) error
}

// Consumer handles command consumption from the Redis stream
type Consumer struct {
	client     *Client
	controller DeviceController
	logger     *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewConsumer creates a new Redis consumer
func NewConsumer(client *Client, controller DeviceController, logger *zap.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		client:     client,
		controller: controller,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start starts consuming commands from the stream
func (c *Consumer) Start() error {
	c.logger.Info("Starting Redis consumer for device commands")

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Info("Redis consumer stopped")
			return nil
		default:
			if err := c.consumeMessages(); err != nil {
				c.logger.Error("Error consuming messages, will retry",
					zap.Error(err),
					zap.Duration("retry_delay", 5*time.Second))
				time.Sleep(5 * time.Second)
				continue
			}
		}
	}
}

// Stop stops the consumer
func (c *Consumer) Stop() {
	c.logger.Info("Stopping Redis consumer")
	c.cancel()
}

// consumeMessages handles the actual message consumption from Redis Streams
func (c *Consumer) consumeMessages() error {
	for {
		select {
		case <-c.ctx.Done():
			return nil
		default:
			streams, err := c.client.ReadCommands(c.ctx, 10, 5*time.Second)
			if err != nil {
				if !c.client.IsHealthy() {
					return fmt.Errorf("Redis connection unhealthy, will reconnect")
				}
				c.logger.Error("Error reading from stream", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}

			for _, stream := range streams {
				for _, message := range stream.Messages {
					c.handleStreamMessage(message)
				}
			}
		}
	}
}

// handleStreamMessage processes a single command message
func (c *Consumer) handleStreamMessage(msg redis.XMessage) {
	c.logger.Debug("Received command from stream",
		zap.String("message_id", msg.ID),
		zap.Int("fields_count", len(msg.Values)))

	payload, ok := msg.Values["payload"].(string)
	if !ok {
		c.logger.Error("Failed to extract payload from stream message",
			zap.String("message_id", msg.ID))
		// Acknowledge the message anyway to prevent reprocessing
		_ = c.client.AcknowledgeMessage(c.ctx, msg.ID)
		return
	}

	var command models.Command
	if err := json.Unmarshal([]byte(payload), &command); err != nil {
		c.logger.Error("Failed to unmarshal command",
			zap.Error(err),
			zap.String("message_id", msg.ID),
			zap.String("payload", payload))
		// Acknowledge the message to prevent reprocessing bad data
		_ = c.client.AcknowledgeMessage(c.ctx, msg.ID)
		return
	}

	if err := c.dispatch(&command); err != nil {
		// A command that cannot be applied now will not apply later
		// either; log it, do not re-deliver.
		c.logger.Error("Failed to handle command",
			zap.Error(err),
			zap.String("message_id", msg.ID),
			zap.String("type", command.Type),
			zap.String("device_id", command.DeviceID))
	} else {
		c.logger.Debug("Command processed",
			zap.String("message_id", msg.ID),
			zap.String("type", command.Type),
			zap.String("device_id", command.DeviceID))
	}

	if err := c.client.AcknowledgeMessage(c.ctx, msg.ID); err != nil {
		c.logger.Error("Failed to acknowledge message",
			zap.Error(err),
			zap.String("message_id", msg.ID))
	}
}

// dispatch routes a command to the matching manager operation
func (c *Consumer) dispatch(command *models.Command) error {
	switch command.Type {
	case models.CommandForceRefresh:
		return c.controller.ForceRefresh(command.DeviceID)
	case models.CommandSetBrightness:
		return c.controller.SetBrightness(c.ctx, command.DeviceID, command.Value)
	case models.CommandSetMode:
		return c.controller.SetMode(c.ctx, command.DeviceID, command.Mode)
	case models.CommandSetFrameDuration:
		value := command.Value
		return c.controller.ApplySettings(c.ctx, command.DeviceID, models.SettingsUpdate{
			FrameDuration: &value,
		})
	default:
		return fmt.Errorf("unknown command type %q", command.Type)
	}
}
