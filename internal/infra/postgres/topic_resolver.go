package postgres

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

type topicRow struct {
	bun.BaseModel `bun:"table:topics,alias:tp"`

	ID       int64  `bun:"id,pk,autoincrement"`
	Label    string `bun:"label,notnull"`
	Code     string `bun:"code,notnull"`
	Section  string `bun:"section,notnull"`
	ParentID *int64 `bun:"parent_id"`
}

// TopicResolver maps topic labels to ids and back against the topics table.
type TopicResolver struct {
	db *bun.DB
}

func NewTopicResolver(db *bun.DB) *TopicResolver {
	return &TopicResolver{db: db}
}

func (r *TopicResolver) LabelsToIDs(ctx context.Context, labels []string) ([]int64, error) {
	if len(labels) == 0 {
		return nil, nil
	}
	var ids []int64
	err := r.db.NewSelect().Model((*topicRow)(nil)).
		Column("id").
		Where("tp.label IN (?)", bun.In(labels)).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("select topic ids: %w", err)
	}
	return ids, nil
}

func (r *TopicResolver) IDsToLabels(ctx context.Context, ids []int64) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var labels []string
	err := r.db.NewSelect().Model((*topicRow)(nil)).
		Column("label").
		Where("tp.id IN (?)", bun.In(ids)).
		Scan(ctx, &labels)
	if err != nil {
		return nil, fmt.Errorf("select topic labels: %w", err)
	}
	return labels, nil
}
