package migration

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/cleitonmarx/initgate/initializer"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/stub"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var migrationsFS = fstest.MapFS{
	"migrations/1_create_users.up.sql":   {Data: []byte("CREATE TABLE users (id INT);")},
	"migrations/1_create_users.down.sql": {Data: []byte("DROP TABLE users;")},
	"migrations/2_add_email.up.sql":      {Data: []byte("ALTER TABLE users ADD email TEXT;")},
	"migrations/2_add_email.down.sql":    {Data: []byte("ALTER TABLE users DROP email;")},
}

func execContext(t *testing.T) (initializer.ExecutionContext, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	return initializer.ExecutionContext{Resource: "db", Initializer: "migrate", Logger: logger}, hook
}

func TestUp(t *testing.T) {
	driver, err := stub.WithInstance(nil, &stub.Config{})
	require.NoError(t, err)
	ec, hook := execContext(t)

	action := Up(FromFS(migrationsFS, "migrations", "stub", driver))
	require.NoError(t, action(context.Background(), ec))

	st := driver.(*stub.Stub)
	assert.Equal(t, 2, st.CurrentVersion)
	assert.False(t, st.IsDirty)
	assert.Equal(t, "ALTER TABLE users ADD email TEXT;", string(st.LastRunMigration))
	assert.Equal(t, "migrations applied successfully", hook.LastEntry().Message)

	require.NoError(t, action(context.Background(), ec), "no change is not an error")
	assert.Equal(t, "migrations already applied", hook.LastEntry().Message)
}

func TestUp_Errors(t *testing.T) {
	boom := errors.New("boom")
	tests := map[string]struct {
		factory     Factory
		expectedErr string
	}{
		"factory-fails": {
			factory:     func() (*migrate.Migrate, error) { return nil, boom },
			expectedErr: "failed to create migrate instance: boom",
		},
		"missing-directory": {
			factory: func() (*migrate.Migrate, error) {
				driver, _ := stub.WithInstance(nil, &stub.Config{})
				return FromFS(migrationsFS, "missing", "stub", driver)()
			},
			expectedErr: "failed to create migration source",
		},
		"unknown-url-scheme": {
			factory:     FromURLs("nope://migrations", "stub://"),
			expectedErr: "failed to create migrate instance",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ec, _ := execContext(t)
			err := Up(tt.factory)(context.Background(), ec)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func TestMigrateLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	l := migrateLogger{logger.WithField("resource", "db")}

	l.Printf("Start buffering %d/u %s\n", 1, "create_users")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Start buffering 1/u create_users", hook.LastEntry().Message)
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
	assert.False(t, l.Verbose())
}
