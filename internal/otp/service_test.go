package otp_test

import (
	"context"
	"testing"
	"time"

	"github.com/Kyz7/chainverse/internal/models"
	"github.com/Kyz7/chainverse/internal/otp"
	"github.com/Kyz7/chainverse/internal/testutils"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeCase struct {
	name  string
	store func(t *testing.T) otp.Store
}

func stores() []storeCase {
	return []storeCase{
		{"gorm", func(t *testing.T) otp.Store {
			return otp.NewGormStore(testutils.TestDB(t))
		}},
		{"redis", func(t *testing.T) otp.Store {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return otp.NewRedisStore(rdb)
		}},
	}
}

// issueDistinct issues until the new code differs from prev, so a collision
// of two random codes cannot make a test pass by accident.
func issueDistinct(t *testing.T, svc *otp.Service, email, prev string) string {
	t.Helper()
	for i := 0; i < 5; i++ {
		_, code, err := svc.Issue(context.Background(), email, models.OTPPurposeRegistration)
		require.NoError(t, err)
		if code != prev {
			return code
		}
	}
	t.Fatal("could not issue a distinct code")
	return ""
}

func TestIssueAndVerify(t *testing.T) {
	for _, sc := range stores() {
		sc := sc
		t.Run(sc.name, func(t *testing.T) {
			svc := otp.NewService(sc.store(t), 10*time.Minute)
			ctx := context.Background()

			record, code, err := svc.Issue(ctx, "a@chainverse.io", models.OTPPurposeRegistration)
			require.NoError(t, err)
			assert.Len(t, code, otp.CodeLength)
			assert.NotEqual(t, code, record.CodeHash, "only the hash is stored")
			assert.WithinDuration(t, time.Now().Add(10*time.Minute), record.ExpiresAt, 5*time.Second)

			assert.NoError(t, svc.Verify(ctx, "a@chainverse.io", models.OTPPurposeRegistration, code))
			assert.ErrorIs(t, svc.Verify(ctx, "a@chainverse.io", models.OTPPurposeRegistration, code), otp.ErrExpiredOrInvalid, "consumed on success")
		})
	}
}

func TestSingleLiveness(t *testing.T) {
	for _, sc := range stores() {
		sc := sc
		t.Run(sc.name, func(t *testing.T) {
			svc := otp.NewService(sc.store(t), 10*time.Minute)
			ctx := context.Background()

			codeA := issueDistinct(t, svc, "b@chainverse.io", "")
			codeB := issueDistinct(t, svc, "b@chainverse.io", codeA)

			assert.ErrorIs(t, svc.Verify(ctx, "b@chainverse.io", models.OTPPurposeRegistration, codeA), otp.ErrExpiredOrInvalid)
			assert.NoError(t, svc.Verify(ctx, "b@chainverse.io", models.OTPPurposeRegistration, codeB))
		})
	}
}

func TestVerifyMismatches(t *testing.T) {
	for _, sc := range stores() {
		sc := sc
		t.Run(sc.name, func(t *testing.T) {
			svc := otp.NewService(sc.store(t), 10*time.Minute)
			ctx := context.Background()

			_, code, err := svc.Issue(ctx, "c@chainverse.io", models.PasswordResetPurpose("admin"))
			require.NoError(t, err)

			assert.ErrorIs(t, svc.Verify(ctx, "unknown@chainverse.io", models.PasswordResetPurpose("admin"), code), otp.ErrExpiredOrInvalid)
			assert.ErrorIs(t, svc.Verify(ctx, "c@chainverse.io", models.OTPPurposeRegistration, code), otp.ErrExpiredOrInvalid)
			assert.ErrorIs(t, svc.Verify(ctx, "c@chainverse.io", models.PasswordResetPurpose("user"), code), otp.ErrExpiredOrInvalid)

			assert.NoError(t, svc.Verify(ctx, "c@chainverse.io", models.PasswordResetPurpose("admin"), code), "mismatches do not consume the code")
		})
	}
}

func TestConsume(t *testing.T) {
	for _, sc := range stores() {
		sc := sc
		t.Run(sc.name, func(t *testing.T) {
			svc := otp.NewService(sc.store(t), 10*time.Minute)
			ctx := context.Background()

			record, code, err := svc.Issue(ctx, "d@chainverse.io", models.OTPPurposeRegistration)
			require.NoError(t, err)

			require.NoError(t, svc.Consume(ctx, record.ID))
			assert.ErrorIs(t, svc.Consume(ctx, record.ID), otp.ErrExpiredOrInvalid)
			assert.ErrorIs(t, svc.Verify(ctx, "d@chainverse.io", models.OTPPurposeRegistration, code), otp.ErrExpiredOrInvalid)
		})
	}
}

func TestExpiryAtServiceClock(t *testing.T) {
	for _, sc := range stores() {
		sc := sc
		t.Run(sc.name, func(t *testing.T) {
			now := time.Now().UTC()
			svc := otp.NewService(sc.store(t), 10*time.Minute).WithClock(func() time.Time { return now })
			ctx := context.Background()

			_, code, err := svc.Issue(ctx, "e@chainverse.io", models.OTPPurposeRegistration)
			require.NoError(t, err)

			now = now.Add(10 * time.Minute)
			assert.ErrorIs(t, svc.Verify(ctx, "e@chainverse.io", models.OTPPurposeRegistration, code), otp.ErrExpiredOrInvalid)
		})
	}
}

func TestGormStoreKeepsOneRowPerEmail(t *testing.T) {
	db := testutils.TestDB(t)
	svc := otp.NewService(otp.NewGormStore(db), 10*time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := svc.Issue(ctx, "f@chainverse.io", models.OTPPurposeRegistration)
		require.NoError(t, err)
	}
	_, _, err := svc.Issue(ctx, "g@chainverse.io", models.OTPPurposeRegistration)
	require.NoError(t, err)

	var count int64
	db.Model(&models.OTP{}).Where("email = ?", "f@chainverse.io").Count(&count)
	assert.Equal(t, int64(1), count)
	db.Model(&models.OTP{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestRedisStoreExpiresByTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := otp.NewRedisStore(rdb)
	svc := otp.NewService(store, 10*time.Minute)
	ctx := context.Background()

	record, code, err := svc.Issue(ctx, "h@chainverse.io", models.OTPPurposeRegistration)
	require.NoError(t, err)

	ttl := mr.TTL("otp:email:h@chainverse.io")
	assert.InDelta(t, (10 * time.Minute).Seconds(), ttl.Seconds(), 5)

	mr.FastForward(10 * time.Minute)

	_, err = store.FindByEmail(ctx, "h@chainverse.io")
	assert.ErrorIs(t, err, otp.ErrNotFound, "redis removed the key itself")
	assert.ErrorIs(t, store.Delete(ctx, record.ID), otp.ErrNotFound)
	assert.ErrorIs(t, svc.Verify(ctx, "h@chainverse.io", models.OTPPurposeRegistration, code), otp.ErrExpiredOrInvalid)
}

func TestWrongGuessesBurnTheCode(t *testing.T) {
	for _, sc := range stores() {
		sc := sc
		t.Run(sc.name, func(t *testing.T) {
			store := sc.store(t)
			svc := otp.NewService(store, 10*time.Minute)
			ctx := context.Background()

			code := issueDistinct(t, svc, "i@chainverse.io", "")
			wrong := "000000"
			if code == wrong {
				wrong = "111111"
			}

			for i := 0; i < otp.MaxAttempts-1; i++ {
				assert.ErrorIs(t, svc.Verify(ctx, "i@chainverse.io", models.OTPPurposeRegistration, wrong), otp.ErrExpiredOrInvalid)
			}
			record, err := store.FindByEmail(ctx, "i@chainverse.io")
			require.NoError(t, err, "still live below the limit")
			assert.Equal(t, otp.MaxAttempts-1, record.Attempts)

			assert.ErrorIs(t, svc.Verify(ctx, "i@chainverse.io", models.OTPPurposeRegistration, wrong), otp.ErrExpiredOrInvalid)
			_, err = store.FindByEmail(ctx, "i@chainverse.io")
			assert.ErrorIs(t, err, otp.ErrNotFound, "the last wrong guess deletes the code")

			assert.ErrorIs(t, svc.Verify(ctx, "i@chainverse.io", models.OTPPurposeRegistration, code), otp.ErrExpiredOrInvalid, "the right code no longer works")
		})
	}
}

func TestReissueResetsAttempts(t *testing.T) {
	for _, sc := range stores() {
		sc := sc
		t.Run(sc.name, func(t *testing.T) {
			store := sc.store(t)
			svc := otp.NewService(store, 10*time.Minute)
			ctx := context.Background()

			first := issueDistinct(t, svc, "j@chainverse.io", "")
			for i := 0; i < otp.MaxAttempts-1; i++ {
				_ = svc.Verify(ctx, "j@chainverse.io", models.OTPPurposePasswordReset, first)
			}

			second := issueDistinct(t, svc, "j@chainverse.io", first)
			record, err := store.FindByEmail(ctx, "j@chainverse.io")
			require.NoError(t, err)
			assert.Zero(t, record.Attempts)
			assert.NoError(t, svc.Verify(ctx, "j@chainverse.io", models.OTPPurposeRegistration, second))
		})
	}
}
