// shared/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
)

// CommonConfig holds infrastructure details used by MULTIPLE services.
// Empty fields fall back to defaults in the getters.
type CommonConfig struct {
	// Database (PostgreSQL) config
	DB_USER     string
	DB_PASSWORD string
	DB_NAME     string
	DB_HOST     string
	DB_PORT     string
	// Kafka config
	KAFKA_TOPIC  string
	KAFKA_BROKER string // comma separated
	KAFKA_GROUP  string
	// RabbitMQ config
	RABBITMQ_USER     string
	RABBITMQ_PASSWORD string
	RABBITMQ_HOST     string
	RABBITMQ_PORT     string
}

// LoadCommonConfig returns the shared infrastructure config from the environment.
func LoadCommonConfig() *CommonConfig {
	return &CommonConfig{
		DB_USER:     os.Getenv("DB_USER"),
		DB_PASSWORD: os.Getenv("DB_PASSWORD"),
		DB_HOST:     os.Getenv("DB_HOST"),
		DB_PORT:     os.Getenv("DB_PORT"),
		DB_NAME:     os.Getenv("DB_NAME"),

		KAFKA_TOPIC:  os.Getenv("KAFKA_TOPIC"),
		KAFKA_BROKER: os.Getenv("KAFKA_BROKER"),
		KAFKA_GROUP:  os.Getenv("KAFKA_GROUP"),

		RABBITMQ_USER:     os.Getenv("RABBITMQ_USER"),
		RABBITMQ_PASSWORD: os.Getenv("RABBITMQ_PASSWORD"),
		RABBITMQ_HOST:     os.Getenv("RABBITMQ_HOST"),
		RABBITMQ_PORT:     os.Getenv("RABBITMQ_PORT"),
	}
}

// HasDB reports whether enough is set to reach a database.
func (c *CommonConfig) HasDB() bool { return c.DB_HOST != "" && c.DB_NAME != "" }

// GetDBURL formats the config into a PostgreSQL connection string.
func (c *CommonConfig) GetDBURL() string {
	port := c.DB_PORT
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.DB_USER, c.DB_PASSWORD, c.DB_HOST, port, c.DB_NAME)
}

// GetKafkaBrokers splits KAFKA_BROKER. Nil means kafka is not configured.
func (c *CommonConfig) GetKafkaBrokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KAFKA_BROKER, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func (c *CommonConfig) GetKafkaTopic() string {
	if c.KAFKA_TOPIC == "" {
		return "shipments"
	}
	return c.KAFKA_TOPIC
}

func (c *CommonConfig) GetKafkaGroup(service string) string {
	if c.KAFKA_GROUP == "" {
		return service + "-group"
	}
	return c.KAFKA_GROUP
}

// HasRabbitMQ reports whether a broker user is configured.
func (c *CommonConfig) HasRabbitMQ() bool { return c.RABBITMQ_USER != "" }

// GetRabbitMQURL formats the config into a RabbitMQ connection string.
func (c *CommonConfig) GetRabbitMQURL() string {
	// default standard ports if missing
	host := c.RABBITMQ_HOST
	if host == "" {
		host = "localhost"
	}
	port := c.RABBITMQ_PORT
	if port == "" {
		port = "5672"
	}

	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		c.RABBITMQ_USER, c.RABBITMQ_PASSWORD, host, port)
}
