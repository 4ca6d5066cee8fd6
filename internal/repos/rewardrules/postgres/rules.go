package rewardrules

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/besitobot/economy/internal/repos/rewardrules"
)

var _ rewardrules.Rules = (*rulesRepo)(nil)

type rulesRepo struct{ db *sql.DB }

func New(db *sql.DB) *rulesRepo {
	return &rulesRepo{db: db}
}

func (r *rulesRepo) ListActive(ctx context.Context) ([]rewardrules.Rule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, condition_tree, reward_amount, priority, per_action_cap, active
		FROM reward_rules
		WHERE active
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query active rules: %w", err)
	}
	defer rows.Close()

	var out []rewardrules.Rule

	for rows.Next() {
		var rule rewardrules.Rule

		err = rows.Scan(&rule.ID, &rule.Name, &rule.ConditionJSON, &rule.RewardAmount,
			&rule.Priority, &rule.PerActionCap, &rule.Active)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}

		out = append(out, rule)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}

	return out, nil
}
