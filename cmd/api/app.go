package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/admin-ops/internal/auth"
	"github.com/spec-kit/admin-ops/internal/config"
	"github.com/spec-kit/admin-ops/internal/domain"
	"github.com/spec-kit/admin-ops/internal/events"
	"github.com/spec-kit/admin-ops/internal/observability"
	"github.com/spec-kit/admin-ops/internal/persistence"
	"github.com/spec-kit/admin-ops/internal/repository"
	"github.com/spec-kit/admin-ops/internal/service"
)

// application holds the shared infrastructure of every command.
type application struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics
	pg      *persistence.Postgres
	redis   *persistence.Redis

	users       repository.UserRepository
	sessions    repository.SessionRepository
	tickets     repository.TicketRepository
	escalations repository.EscalationRepository
	rules       repository.RuleRepository
	assignments repository.AssignmentRepository
	tasks       repository.TaskRepository

	tokens        *auth.TokenManager
	dispatcher    events.Dispatcher
	notifications *service.NotificationService
}

func newApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application, error) {
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			pg.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	metrics := observability.NewMetrics()
	pool := pg.PoolHandle()

	app := &application{
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
		pg:          pg,
		redis:       redis,
		users:       repository.NewUserRepository(pool),
		sessions:    repository.NewSessionRepository(pool),
		tickets:     repository.NewTicketRepository(pool),
		escalations: repository.NewEscalationRepository(pool),
		rules:       repository.NewRuleRepository(pool),
		assignments: repository.NewAssignmentRepository(pool),
		tasks:       repository.NewTaskRepository(pool),
		tokens:      auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		dispatcher:  events.NewInMemoryDispatcher(),
	}

	var publisher service.Publisher
	if client := redis.Available(); client != nil {
		publisher = client
	}
	app.notifications = service.NewNotificationService(app.dispatcher, publisher, metrics, logger, cfg.Notification)
	return app, nil
}

func (a *application) close() {
	a.redis.Close()
	a.pg.Close()
}

func (a *application) ticketLocker() service.TicketLocker {
	if client := a.redis.Available(); client != nil {
		return service.NewRedisTicketLocker(client, a.cfg.Escalation.TicketLockTTL)
	}
	a.logger.Warn("redis unreachable; ticket locks are local to this process")
	return service.NewLocalTicketLocker()
}

func (a *application) escalationService(ctx context.Context) *service.EscalationService {
	return service.NewEscalationService(ctx, service.EscalationDependencies{
		TicketRepo:        a.tickets,
		EscalationRepo:    a.escalations,
		RuleRepo:          a.rules,
		AssignmentRepo:    a.assignments,
		TaskRepo:          a.tasks,
		Notifier:          a.notifications,
		EmailSender:       service.NewLoggingEmailSender(a.logger, a.cfg.Notification.EmailFrom),
		Locker:            a.ticketLocker(),
		Dispatcher:        a.dispatcher,
		Metrics:           a.metrics,
		Logger:            a.logger,
		DefaultRecipients: a.cfg.Notification.DefaultRecipients,
	})
}

func (a *application) authService() *service.AuthService {
	return service.NewAuthService(service.AuthDependencies{
		UserRepo:    a.users,
		SessionRepo: a.sessions,
		Tokens:      a.tokens,
		BcryptCost:  a.cfg.Auth.BcryptCost,
		Metrics:     a.metrics,
		Logger:      a.logger,
	})
}

// sessionManager signs the service account in and starts tracking its
// session. It returns nil when no service account is configured.
func (a *application) sessionManager(ctx context.Context) *service.SessionManager {
	if a.cfg.Auth.ServiceEmail == "" {
		a.logger.Info("AUTH_SERVICE_EMAIL not set; session manager disabled")
		return nil
	}

	provider := auth.NewLocalProvider(a.users, a.tokens, a.cfg.Auth.BcryptCost)
	manager := service.NewSessionManager(service.SessionManagerDependencies{
		Provider: provider,
		Sessions: a.sessions,
		Prompter: a.notifications,
		Metrics:  a.metrics,
		Logger:   a.logger,
		Config:   a.cfg.Session,
	})
	manager.AddEventListener(domain.SessionEventExpired, func(event domain.SessionEvent) {
		a.logger.Warn("service account session expired", zap.String("message", event.Message))
	})
	manager.AddEventListener(domain.SessionEventRenewed, func(event domain.SessionEvent) {
		if event.Session != nil {
			a.logger.Info("service account session renewed", zap.Time("expires_at", event.Session.ExpiresAt))
		}
	})

	// subscribe first so the SIGNED_IN of the service account is recorded
	manager.Initialize(ctx)
	if _, err := provider.SignInWithPassword(ctx, a.cfg.Auth.ServiceEmail, a.cfg.Auth.ServicePassword); err != nil {
		a.logger.Warn("service account sign-in failed", zap.String("email", a.cfg.Auth.ServiceEmail), zap.Error(err))
	}
	return manager
}
