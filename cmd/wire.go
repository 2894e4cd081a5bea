package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"k12-tutor/internal/api"
	"k12-tutor/internal/config"
	"k12-tutor/internal/integrations/gemini"
	"k12-tutor/internal/integrations/offline"
	"k12-tutor/internal/integrations/openai"
	"k12-tutor/internal/integrations/paramstore"
	"k12-tutor/internal/moderation"
	"k12-tutor/internal/platform/logger"
	"k12-tutor/internal/repository"
	"k12-tutor/internal/usecase"
)

type app struct {
	endpoints *api.Endpoints
	closers   []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// clients holds the lazily created external dependencies shared by the
// builders below.
type clients struct {
	cfg    config.Config
	log    *logger.Logger
	awsCfg *aws.Config
	params paramstore.Getter
	openai *openai.Client
}

func (c *clients) aws(ctx context.Context) (aws.Config, error) {
	if c.awsCfg != nil {
		return *c.awsCfg, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	c.awsCfg = &awsCfg
	return awsCfg, nil
}

func (c *clients) paramStore(ctx context.Context) (paramstore.Getter, error) {
	if c.params != nil || !c.cfg.NeedsParamStore() {
		return c.params, nil
	}
	awsCfg, err := c.aws(ctx)
	if err != nil {
		return nil, err
	}
	ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("create SSM client: %w", err)
	}
	c.params = ps
	return ps, nil
}

func (c *clients) openAI(ctx context.Context) (*openai.Client, error) {
	if c.openai != nil {
		return c.openai, nil
	}
	ps, err := c.paramStore(ctx)
	if err != nil {
		return nil, err
	}
	client, err := openai.NewClient(
		paramstore.SecretSource{Value: c.cfg.OpenAIAPIKey, Getter: ps, Name: c.cfg.OpenAIParam()},
		openai.WithBaseURL(c.cfg.OpenAIBaseURL),
		openai.WithModel(c.cfg.OpenAIModel),
	)
	if err != nil {
		return nil, fmt.Errorf("create OpenAI client: %w", err)
	}
	c.openai = client
	return client, nil
}

func (c *clients) model(ctx context.Context) (usecase.Generator, error) {
	switch c.cfg.ModelProvider {
	case config.ProviderOffline:
		return offline.NewResponder(), nil
	case config.ProviderOpenAI:
		client, err := c.openAI(ctx)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.ProviderGemini:
		ps, err := c.paramStore(ctx)
		if err != nil {
			return nil, err
		}
		client, err := gemini.NewClient(
			paramstore.SecretSource{Value: c.cfg.GeminiAPIKey, Getter: ps, Name: c.cfg.GeminiParam()},
			gemini.WithModel(c.cfg.GeminiModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create Gemini client: %w", err)
		}
		return client, nil
	}
	return nil, fmt.Errorf("unknown model provider %q", c.cfg.ModelProvider)
}

func (c *clients) moderator(ctx context.Context) (moderation.Classifier, error) {
	words := append(append([]string{}, moderation.DefaultBlocklist...), c.cfg.BlocklistExtra...)
	blocklist := moderation.NewBlocklist(words...)
	if c.cfg.Moderation != config.ModerationOpenAI {
		return moderation.NewChain(c.log, blocklist), nil
	}
	client, err := c.openAI(ctx)
	if err != nil {
		return nil, err
	}
	return moderation.NewChain(c.log, blocklist, client), nil
}

func (c *clients) sessionStore(ctx context.Context) (usecase.SessionStore, func() error, error) {
	noop := func() error { return nil }
	switch c.cfg.SessionBackend {
	case config.BackendMemory:
		return repository.NewMemoryStore(
			repository.WithMaxSessions(c.cfg.SessionMaxEntries),
			repository.WithIdleTTL(c.cfg.SessionTTL),
		), noop, nil
	case config.BackendRedis:
		rdb, err := repository.DialRedis(ctx, c.cfg.RedisAddr, c.cfg.RedisPassword, c.cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		store, err := repository.NewRedisStore(rdb, c.cfg.RedisKeyPrefix, c.cfg.SessionTTL)
		if err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return store, rdb.Close, nil
	case config.BackendDynamoDB:
		awsCfg, err := c.aws(ctx)
		if err != nil {
			return nil, nil, err
		}
		store, err := repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), c.cfg.StateTable, c.cfg.SessionTTL)
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	}
	return nil, nil, fmt.Errorf("unknown session backend %q", c.cfg.SessionBackend)
}

// buildApp wires the configured store, moderator and model into the chat
// endpoints shared by the HTTP server and the Lambda handler.
func buildApp(ctx context.Context, cfg config.Config, log *logger.Logger) (*app, error) {
	if log == nil {
		return nil, errors.New("logger must not be nil")
	}
	c := &clients{cfg: cfg, log: log}

	model, err := c.model(ctx)
	if err != nil {
		return nil, err
	}
	moderator, err := c.moderator(ctx)
	if err != nil {
		return nil, err
	}
	store, closeStore, err := c.sessionStore(ctx)
	if err != nil {
		return nil, err
	}
	a := &app{closers: []func() error{closeStore}}

	generator, err := usecase.NewResponseGenerator(model, log,
		usecase.WithSubject(cfg.TutorSubject),
		usecase.WithModelTimeout(cfg.ModelTimeout),
		usecase.WithMaxInflight(cfg.MaxInflight),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	svc, err := usecase.NewChatService(store, moderator, generator, log, cfg.MaxMessageLength)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.endpoints, err = api.NewEndpoints(svc, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}
