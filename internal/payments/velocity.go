package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Hervar88/DentiFlow/pkg/logging"
)

// ErrTooManyAttempts is returned when an appointment or patient exceeded the
// checkout limit for the current window.
var ErrTooManyAttempts = errors.New("payments: too many checkout attempts")

// VelocityChecker caps how often deposit checkouts are opened, backed by
// Redis counters with a TTL window.
type VelocityChecker struct {
	redis  *redis.Client
	logger *logging.Logger
	config VelocityConfig
}

// VelocityConfig contains velocity check configuration.
type VelocityConfig struct {
	// Max checkouts opened per appointment per window
	MaxCheckoutsPerAppointment int
	AppointmentWindow          time.Duration

	// Max checkouts opened per patient phone per window, across appointments
	MaxCheckoutsPerPhone int
	PhoneWindow          time.Duration
}

// DefaultVelocityConfig returns default velocity limits.
func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{
		MaxCheckoutsPerAppointment: 5,
		AppointmentWindow:          time.Hour,
		MaxCheckoutsPerPhone:       10,
		PhoneWindow:                24 * time.Hour,
	}
}

// VelocityResult contains the result of a velocity check.
type VelocityResult struct {
	Allowed      bool
	CheckType    string
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
	Message      string
}

func NewVelocityChecker(redisClient *redis.Client, config VelocityConfig, logger *logging.Logger) *VelocityChecker {
	if redisClient == nil {
		panic("payments: redis client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	defaults := DefaultVelocityConfig()
	if config.MaxCheckoutsPerAppointment <= 0 {
		config.MaxCheckoutsPerAppointment = defaults.MaxCheckoutsPerAppointment
	}
	if config.AppointmentWindow <= 0 {
		config.AppointmentWindow = defaults.AppointmentWindow
	}
	if config.MaxCheckoutsPerPhone <= 0 {
		config.MaxCheckoutsPerPhone = defaults.MaxCheckoutsPerPhone
	}
	if config.PhoneWindow <= 0 {
		config.PhoneWindow = defaults.PhoneWindow
	}
	return &VelocityChecker{redis: redisClient, logger: logger, config: config}
}

// CheckAppointment counts a checkout attempt for one appointment.
func (v *VelocityChecker) CheckAppointment(ctx context.Context, appointmentID uuid.UUID) (*VelocityResult, error) {
	return v.check(ctx, "appointment", appointmentKey(appointmentID), v.config.MaxCheckoutsPerAppointment, v.config.AppointmentWindow)
}

// CheckPhone counts a checkout attempt for a patient phone. An empty phone is
// always allowed.
func (v *VelocityChecker) CheckPhone(ctx context.Context, clinicID uuid.UUID, phone string) (*VelocityResult, error) {
	if phone == "" {
		return &VelocityResult{Allowed: true, CheckType: "phone"}, nil
	}
	return v.check(ctx, "phone", phoneKey(clinicID, phone), v.config.MaxCheckoutsPerPhone, v.config.PhoneWindow)
}

func (v *VelocityChecker) check(ctx context.Context, kind, key string, max int, window time.Duration) (*VelocityResult, error) {
	ctx, span := mercadoPagoTracer.Start(ctx, "payments.velocity."+kind)
	defer span.End()
	span.SetAttributes(attribute.String("velocity.check_type", kind))

	count, expiry, err := v.incrementAndGet(ctx, key, window)
	if err != nil {
		v.logger.Error("velocity check failed", "error", err, "key", key)
		// Fail open when Redis is down.
		return &VelocityResult{Allowed: true, CheckType: kind, Message: "velocity check unavailable"}, nil
	}

	result := &VelocityResult{
		Allowed:      count <= max,
		CheckType:    kind,
		CurrentCount: count,
		MaxAllowed:   max,
		WindowExpiry: expiry,
	}
	if !result.Allowed {
		result.Message = fmt.Sprintf("exceeded %d checkout attempts in %s", max, window)
		v.logger.Warn("checkout velocity exceeded", "check", kind, "key", key, "count", count, "max", max)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
	}
	return result, nil
}

// incrementAndGet increments a counter and returns the new value with expiry time.
func (v *VelocityChecker) incrementAndGet(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	// Expiry is set only on the first increment so the window does not slide.
	if count == 1 {
		v.redis.Expire(ctx, key, window)
	}
	ttl, err := v.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return int(count), time.Now().Add(ttl), nil
}

// ResetAppointment clears the counter for one appointment.
func (v *VelocityChecker) ResetAppointment(ctx context.Context, appointmentID uuid.UUID) error {
	return v.redis.Del(ctx, appointmentKey(appointmentID)).Err()
}

func appointmentKey(id uuid.UUID) string {
	return "velocity:checkout:appointment:" + id.String()
}

func phoneKey(clinicID uuid.UUID, phone string) string {
	return fmt.Sprintf("velocity:checkout:phone:%s:%s", clinicID, phone)
}
