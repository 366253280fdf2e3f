package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"

	"quizdrill-service/internal/domain"
)

const routingKey = "achievement.score_updated"

// Notifier publishes score-updated events to a topic exchange for the
// achievement service. Delivery is best-effort: the caller already runs it
// detached from the request and logs any error.
type Notifier struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewNotifier(url, exchange string) (*Notifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Notifier{conn: conn, channel: ch, exchange: exchange}, nil
}

type scoreEvent struct {
	UserID  int64  `json:"user_id"`
	Section string `json:"section"`
	Score   int64  `json:"score"`
	At      string `json:"at"`
}

func (n *Notifier) Notify(_ context.Context, userID int64, section domain.Section, cumulativeScore int64) error {
	body, err := json.Marshal(scoreEvent{
		UserID:  userID,
		Section: string(section),
		Score:   cumulativeScore,
		At:      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return n.channel.Publish(n.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

func (n *Notifier) Close() {
	if n.channel != nil {
		_ = n.channel.Close()
	}
	if n.conn != nil {
		_ = n.conn.Close()
	}
}
