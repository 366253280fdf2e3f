package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quizdrill-service/internal/app"
	"quizdrill-service/internal/domain"
)

// QuestionCache is a read-through Redis cache in front of the question
// bank: one JSON entry per question plus one id-list entry per topic-label
// set. The complement listing used for sampler backfill always goes to the
// backing store since its result depends on the excluded set.
type QuestionCache struct {
	client *redis.Client
	bank   app.QuestionBank
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

// cachedQuestion mirrors domain.Question with the correct answer included,
// which the public JSON tags deliberately omit.
type cachedQuestion struct {
	ID            int64               `json:"id"`
	Title         string              `json:"title"`
	Text          string              `json:"text"`
	Type          domain.QuestionType `json:"type"`
	Difficulty    domain.Difficulty   `json:"difficulty"`
	Options       []string            `json:"options"`
	CorrectAnswer []string            `json:"correct_answer"`
	TopicCode     string              `json:"topic_code"`
}

func NewQuestionCache(client *redis.Client, bank app.QuestionBank, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		bank:   bank,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) ByIDs(ctx context.Context, ids []int64) ([]domain.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = questionKey(id)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		// Treat a cache outage as a miss on everything.
		values = make([]interface{}, len(ids))
	}

	out := make([]domain.Question, 0, len(ids))
	var missing []int64
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var cq cachedQuestion
		if err := json.Unmarshal([]byte(raw), &cq); err != nil {
			missing = append(missing, ids[i])
			continue
		}
		out = append(out, fromCached(cq))
	}
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := c.bank.ByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	c.store(ctx, loaded)
	return append(out, loaded...), nil
}

func (c *QuestionCache) ByTopicLabels(ctx context.Context, labels []string) ([]domain.Question, error) {
	key := topicKey(labels)

	if raw, err := c.client.Get(ctx, key).Result(); err == nil {
		var ids []int64
		if err := json.Unmarshal([]byte(raw), &ids); err == nil {
			return c.ByIDs(ctx, ids)
		}
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another goroutine filled the entry.
		if raw, err := c.client.Get(ctx, key).Result(); err == nil {
			var ids []int64
			if err := json.Unmarshal([]byte(raw), &ids); err == nil {
				return c.ByIDs(ctx, ids)
			}
		}

		questions, err := c.bank.ByTopicLabels(ctx, labels)
		if err != nil {
			return nil, err
		}
		c.store(ctx, questions)

		ids := make([]int64, len(questions))
		for i, q := range questions {
			ids[i] = q.ID
		}
		if encoded, err := json.Marshal(ids); err == nil {
			_ = c.client.Set(ctx, key, encoded, c.ttlWithJitter()).Err()
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) IDs(ctx context.Context, exclude []int64) ([]int64, error) {
	return c.bank.IDs(ctx, exclude)
}

func (c *QuestionCache) store(ctx context.Context, questions []domain.Question) {
	if len(questions) == 0 {
		return
	}
	pipe := c.client.Pipeline()
	for _, q := range questions {
		encoded, err := json.Marshal(toCached(q))
		if err != nil {
			continue
		}
		pipe.Set(ctx, questionKey(q.ID), encoded, c.ttlWithJitter())
	}
	_, _ = pipe.Exec(ctx)
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func questionKey(id int64) string {
	return fmt.Sprintf("question:%d", id)
}

func topicKey(labels []string) string {
	sorted := append([]string(nil), labels...)
	sort.Strings(sorted)
	return "topic:" + strings.Join(sorted, ",") + ":questions"
}

func toCached(q domain.Question) cachedQuestion {
	return cachedQuestion{
		ID:            q.ID,
		Title:         q.Title,
		Text:          q.Text,
		Type:          q.Type,
		Difficulty:    q.Difficulty,
		Options:       q.Options,
		CorrectAnswer: q.CorrectAnswer,
		TopicCode:     q.TopicCode,
	}
}

func fromCached(cq cachedQuestion) domain.Question {
	return domain.Question{
		ID:            cq.ID,
		Title:         cq.Title,
		Text:          cq.Text,
		Type:          cq.Type,
		Difficulty:    cq.Difficulty,
		Options:       cq.Options,
		CorrectAnswer: cq.CorrectAnswer,
		TopicCode:     cq.TopicCode,
	}
}
