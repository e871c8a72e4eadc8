package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/alina-bot/internal/bot/handlers"
	"github.com/Proton-105/alina-bot/internal/domain"
	errors "github.com/Proton-105/alina-bot/internal/errors"
	"github.com/Proton-105/alina-bot/internal/middleware"
)

// ProfileLoader loads or creates the profile of the update sender.
type ProfileLoader interface {
	GetOrCreate(ctx context.Context, telegramUser *telebot.User) (*domain.User, error)
}

// ActivityRecorder stamps the last time a user was seen.
type ActivityRecorder interface {
	UpdateLastActive(ctx context.Context, userID int64) error
}

// RecoveryMiddleware catches panics, reports them via the centralized handler, and notifies the user.
func RecoveryMiddleware(log *slog.Logger, errHandler *errors.Handler) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered in handler", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))

					userMsg := ""
					if errHandler != nil {
						userMsg, _ = errHandler.Handle(errorContext(c), fmt.Errorf("panic recovered: %v", r))
					}
					if userMsg != "" && c != nil {
						if sendErr := c.Send(userMsg); sendErr != nil {
							log.Error("failed to notify user about panic", slog.Any("error", sendErr))
						}
					}

					err = nil
				}
			}()

			return next(c)
		}
	}
}

// ErrorHandlingMiddleware centralizes error reporting and user messaging for handler failures.
func ErrorHandlingMiddleware(errHandler *errors.Handler, fallback string) handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			userMsg := fallback
			if errHandler != nil {
				if msg, _ := errHandler.WithFallback(fallback).Handle(errorContext(c), err); msg != "" {
					userMsg = msg
				}
			}

			if c == nil {
				return nil
			}
			if c.Callback() != nil {
				_ = c.Respond()
			}
			if c.PreCheckoutQuery() != nil {
				return nil
			}
			if userMsg != "" {
				_ = c.Send(userMsg)
			}

			return nil
		}
	}
}

// LoggingMiddleware logs basic telemetry about incoming updates.
func LoggingMiddleware(log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			start := time.Now()
			userID := int64(0)
			if c.Sender() != nil {
				userID = c.Sender().ID
			}
			action := middleware.ActionName(c)

			log.Debug("handling update", slog.Int64("user_id", userID), slog.String("action", action))
			err := next(c)
			log.Info("handled update",
				slog.Int64("user_id", userID),
				slog.String("action", action),
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err),
			)

			return err
		}
	}
}

// AuthMiddleware ensures that each incoming request is associated with a user record and
// stores it in the context under handlers.UserKey.
func AuthMiddleware(users ProfileLoader, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			if users == nil || c.Sender() == nil {
				return next(c)
			}

			u, err := users.GetOrCreate(context.Background(), c.Sender())
			if err != nil {
				log.Error("failed to load user", slog.Int64("user_id", c.Sender().ID), slog.Any("error", err))
				return errors.NewDatabaseError(err)
			}
			c.Set(handlers.UserKey, u)

			return next(c)
		}
	}
}

// LastActiveMiddleware records user activity timestamps without blocking request flow.
func LastActiveMiddleware(activity ActivityRecorder, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			if activity != nil && c.Sender() != nil {
				go func(id int64) {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := activity.UpdateLastActive(ctx, id); err != nil {
						log.Debug("update last active failed", slog.Int64("user_id", id), slog.Any("error", err))
					}
				}(c.Sender().ID)
			}

			return next(c)
		}
	}
}

// errorContext carries the sender so reported errors name the user.
func errorContext(c telebot.Context) context.Context {
	ctx := context.Background()
	if c != nil && c.Sender() != nil {
		ctx = errors.WithUser(ctx, c.Sender().ID)
	}
	return ctx
}
