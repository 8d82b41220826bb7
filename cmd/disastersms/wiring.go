package main

import (
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/disaster-sms/internal/adapter/nws"
	"github.com/couchcryptid/disaster-sms/internal/adapter/openai"
	"github.com/couchcryptid/disaster-sms/internal/adapter/smtp"
	"github.com/couchcryptid/disaster-sms/internal/adapter/twilio"
	"github.com/couchcryptid/disaster-sms/internal/domain"
	"github.com/couchcryptid/disaster-sms/internal/observability"
	"github.com/couchcryptid/disaster-sms/internal/pipeline"
)

func (a *app) completer() *openai.Client {
	return openai.NewClient(a.cfg.OpenAIAPIKey, a.cfg.OpenAIBaseURL, a.cfg.OpenAITimeout)
}

func (a *app) aggregator(cache domain.CacheStore, completer pipeline.Completer, clock clockwork.Clock, metrics *observability.Metrics) *pipeline.Aggregator {
	var sources []pipeline.Source
	if a.cfg.NWSCountyCode != "" {
		opts := nws.Options{
			BaseURL:    a.cfg.NWSBaseURL,
			UserAgent:  a.cfg.NWSUserAgent,
			Timeout:    a.cfg.FetchTimeout,
			MaxRetries: a.cfg.FetchMaxRetries,
			Clock:      clock,
		}
		sources = append(sources,
			nws.NewAlertsFeed(a.cfg.NWSCountyCode, opts, a.logger),
			nws.NewForecastFeed(a.cfg.NWSCountyCode, opts, a.logger),
		)
	} else {
		a.logger.Warn("NWS_COUNTY_CODE not set, skipping NWS feeds")
	}
	sources = append(sources, pipeline.NewNewsSource(completer, a.cfg.OpenAISearchModel, a.cfg.Location, clock, a.logger))

	return pipeline.NewAggregator(sources, cache, a.logger, metrics)
}

func (a *app) summarizer(cache domain.CacheStore, completer pipeline.Completer, clock clockwork.Clock, metrics *observability.Metrics) *pipeline.Summarizer {
	return pipeline.NewSummarizer(cache, completer, a.cfg.OpenAISummaryModel, a.cfg.SummaryMaxTokens, clock, a.logger, metrics)
}

func (a *app) notifier(clock clockwork.Clock, metrics *observability.Metrics) *pipeline.Notifier {
	sms := twilio.NewClient(a.cfg.TwilioAccountSID, a.cfg.TwilioAuthToken, a.cfg.TwilioPhoneNumber, a.cfg.TwilioBaseURL, a.cfg.FetchTimeout, a.logger)
	email := smtp.NewSender(smtp.Config{
		RelayHost:    a.cfg.RelayHost,
		User:         a.cfg.SMTPUser,
		Password:     a.cfg.SMTPPassword,
		SenderDomain: a.cfg.SenderDomain,
	}, clock, a.logger)
	return pipeline.NewNotifier(sms, email, a.cfg.AdminEmail, a.logger, metrics)
}
