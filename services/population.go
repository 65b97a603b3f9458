package services

import (
	"context"

	"github.com/robotlab/labhub/models"
	"github.com/robotlab/labhub/repository"
)

// targetUsers resolves who a campaign applies to: its grades and explicit ids, or the
// default cohorts when it names neither.
func targetUsers(ctx context.Context, users repository.UserStore, c models.Attendance, defaults []string) ([]models.User, error) {
	grades := []string(c.TargetGrades)
	ids := []uint(c.TargetUserIDs)
	if len(grades) == 0 && len(ids) == 0 {
		grades = defaults
	}
	return users.TargetUsers(ctx, grades, ids)
}

func emailsOf(users []models.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		if u.Email != "" {
			out = append(out, u.Email)
		}
	}
	return out
}
