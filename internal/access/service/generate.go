package service

import (
	"context"
	"math/rand"
	"time"

	"overseer/internal/access/models"
	id "overseer/pkg/domain"
	dErrors "overseer/pkg/domain-errors"
)

// generateUsers are the synthetic accessing users for demo logs.
var generateUsers = []string{
	"frauke@example.com",
	"admin@example.com",
	"markiplier-1928@example.com",
	"d_schmidberger@example.com",
	"westermann@example.com",
	"valentin@example.com",
	"maren@example.com",
	"marlene@example.com",
	"erick@example.com",
}

var generateKinds = []id.AccessKind{
	id.AccessKindAggregate,
	id.AccessKindQuery,
	id.AccessKindDirect,
}

// Generate writes n synthetic accesses for one owner, spread randomly over
// the date range and the given tools. Admin-only demo tooling: the entries
// bypass policy evaluation on purpose.
func (s *Service) Generate(ctx context.Context, owner id.SubjectID, dateStart, dateEnd id.Date, n int, tools []string) error {
	if len(tools) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "no tools are registered")
	}
	if n < 0 {
		return dErrors.New(dErrors.CodeValidation, "number of entries must not be negative")
	}
	if dateStart.After(dateEnd) {
		dateStart, dateEnd = dateEnd, dateStart
	}
	maxExtraDays := int(dateEnd.Time().Sub(dateStart.Time()).Hours() / 24)

	for i := 0; i < n; i++ {
		timestamp := dateStart.Time().Add(
			time.Duration(rand.Intn(maxExtraDays+1))*24*time.Hour +
				time.Duration(rand.Intn(24))*time.Hour +
				time.Duration(rand.Intn(60))*time.Minute +
				time.Duration(rand.Intn(60))*time.Second,
		)
		access, err := models.NewCandidate(
			id.SubjectID(generateUsers[rand.Intn(len(generateUsers))]),
			tools[rand.Intn(len(tools))],
			generateKinds[rand.Intn(len(generateKinds))],
			timestamp,
			"",
			nil,
			[]id.SubjectID{owner},
		)
		if err != nil {
			return err
		}
		if err := s.record(ctx, access); err != nil {
			return err
		}
	}
	return nil
}
