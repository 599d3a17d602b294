//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"verifier/internal/rules"
	"verifier/internal/rules/engine"
	"verifier/internal/rules/store"
	"verifier/pkg/platform/sentinel"
	"verifier/pkg/testutil/containers"
)

type PostgresRepositorySuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	repo     *store.Postgres
}

func TestPostgresRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRepositorySuite))
}

func (s *PostgresRepositorySuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.repo = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresRepositorySuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "rule_snapshots", "rules")
	s.Require().NoError(err)
}

func (s *PostgresRepositorySuite) TestPublishAndRestore() {
	ctx := context.Background()
	st := store.New(engine.DefaultRegistry(), store.WithRepository(s.repo))

	_, err := st.Publish(ctx, []rules.Rule{hateSpeechRule()})
	s.Require().NoError(err)

	restored := store.New(engine.DefaultRegistry(), store.WithRepository(s.repo))
	s.Require().NoError(restored.Restore(ctx))

	snap := restored.CurrentSnapshot()
	s.Equal(int64(1), snap.Version())
	s.Require().Len(snap.Rules(), 1)
	got := snap.Rules()[0]
	s.Equal([]string{"profile.update"}, got.TriggerActions)
	s.Equal([]any{"slur"}, got.Parameters["terms"])
	s.True(got.SameBody(hateSpeechRule()))
}

func (s *PostgresRepositorySuite) TestRuleVersionNotFound() {
	_, err := s.repo.RuleVersion(context.Background(), "missing", 1)
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.repo.LatestSnapshot(context.Background())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresRepositorySuite) TestLatestVersion() {
	ctx := context.Background()
	st := store.New(engine.DefaultRegistry(), store.WithRepository(s.repo))

	r := hateSpeechRule()
	_, err := st.Publish(ctx, []rules.Rule{r})
	s.Require().NoError(err)
	r.Priority = 4
	_, err = st.Publish(ctx, []rules.Rule{r})
	s.Require().NoError(err)

	latest, err := s.repo.LatestVersion(ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(2, latest.Version)
	s.Equal(4, latest.Priority)
}
