package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"code-review-be/internal/model"
	"code-review-be/internal/pkg/apperror"
	"code-review-be/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(uuid.NewString(), "-", ""))
	db, err := database.NewSQLiteDB(dsn)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.Relational()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func fastHasher() PasswordHasher {
	return NewBcryptHasher(bcrypt.MinCost)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent map[string][]string
	fail bool
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{sent: map[string][]string{}}
}

func (m *fakeMailer) SendOTP(toEmail, otp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp: connection refused")
	}
	m.sent[toEmail] = append(m.sent[toEmail], otp)
	return nil
}

func (m *fakeMailer) lastOTP(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := m.sent[email]
	if len(codes) == 0 {
		return ""
	}
	return codes[len(codes)-1]
}

func requireAppError(t *testing.T, err error, status int, code string) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperror.As(err)
	require.Truef(t, ok, "expected *apperror.AppError, got %T: %v", err, err)
	require.Equal(t, status, appErr.Status, "status for %s", appErr.Code)
	require.Equal(t, code, appErr.Code)
}
