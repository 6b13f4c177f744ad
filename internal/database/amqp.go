package database

import (
	"errors"
	"net/url"
	"strings"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// SanitizeAMQPURL trims quoting and whitespace that commonly leak in from
// .env files and checks the scheme.
func SanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if !strings.HasSuffix(clean, "/") {
		clean += "/"
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// InitAMQP opens a connection and channel for the ledger event exporter.
// Callers close the connection; the channel closes with it.
func InitAMQP(rawURL string, logger *zap.Logger) (*amqp091.Connection, *amqp091.Channel, error) {
	cleanURL, err := SanitizeAMQPURL(rawURL)
	if err != nil {
		return nil, nil, err
	}

	conn, err := amqp091.Dial(cleanURL)
	if err != nil {
		return nil, nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	logger.Info("rabbitmq connection established")
	return conn, channel, nil
}
