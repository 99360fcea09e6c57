package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"babelpool/pkg/cache"
	"babelpool/pkg/logger"
	"babelpool/pkg/tasks"

	"github.com/rs/zerolog"
)

// Processor runs the two translation paths. The single path fans one task
// out across its target languages concurrently, with a cache check per
// language. The batch path spends one inference call per target language
// for the whole batch and skips the cache.
type Processor struct {
	svc     Translator
	cache   cache.TranslationCache
	publish PublishFunc
	log     zerolog.Logger
}

// NewProcessor wires the processor to its collaborators. cache may be nil
// (no caching); svc may be nil, which degrades to an echo translation so
// the pipeline stays observable in development.
func NewProcessor(svc Translator, c cache.TranslationCache, publish PublishFunc) *Processor {
	return &Processor{
		svc:     svc,
		cache:   c,
		publish: publish,
		log:     logger.With("processor"),
	}
}

// ProcessSingle translates one task into every target language and
// publishes one result per language, failures included. Languages run
// concurrently; a failed language never blocks the others. Results are
// published in target-language order. Returns the number of successful
// translations.
func (p *Processor) ProcessSingle(ctx context.Context, t *tasks.Task, workerName string) int {
	results := make([]*tasks.Result, len(t.TargetLanguages))

	var wg sync.WaitGroup
	for i, lang := range t.TargetLanguages {
		wg.Add(1)
		go func(i int, lang string) {
			defer wg.Done()
			results[i] = p.translateOne(ctx, t, lang, workerName)
		}(i, lang)
	}
	wg.Wait()

	completed := 0
	for _, res := range results {
		p.publish(t, res)
		if res.Error == "" {
			completed++
		}
	}
	return completed
}

// translateOne handles a single (task, target language) pair:
// cache check, inference, write-through, in that order.
func (p *Processor) translateOne(ctx context.Context, t *tasks.Task, targetLang, workerName string) *tasks.Result {
	start := time.Now()

	if p.cache != nil {
		entry, err := p.cache.Get(ctx, t.Text, t.SourceLanguage, targetLang, t.ModelType)
		if err != nil {
			// A broken cache only costs us inference time.
			p.log.Debug().Err(err).Str("target", targetLang).Msg("cache lookup failed")
		} else if entry != nil {
			p.log.Debug().
				Str("source", t.SourceLanguage).
				Str("target", targetLang).
				Str("messageId", t.MessageID).
				Msg("cache hit")
			src, model := entry.SourceLanguage, entry.ModelType
			if src == "" {
				src = t.SourceLanguage
			}
			if model == "" {
				model = t.ModelType
			}
			return &tasks.Result{
				MessageID:      t.MessageID,
				TranslatedText: entry.TranslatedText,
				SourceLanguage: src,
				TargetLanguage: targetLang,
				Confidence:     tasks.CacheHitConfidence,
				ProcessingTime: time.Since(start).Seconds(),
				ModelType:      model,
				FromCache:      true,
				PoolType:       t.Home(),
				WorkerID:       workerName,
			}
		}
	}

	if p.svc == nil {
		// Echo mode: tag the untranslated text so downstreams can tell.
		return &tasks.Result{
			MessageID:      t.MessageID,
			TranslatedText: fmt.Sprintf("[%s] %s", strings.ToUpper(targetLang), t.Text),
			SourceLanguage: t.SourceLanguage,
			TargetLanguage: targetLang,
			Confidence:     0.1,
			ProcessingTime: time.Since(start).Seconds(),
			ModelType:      "fallback",
			PoolType:       t.Home(),
			WorkerID:       workerName,
			Error:          "no translation service available",
		}
	}

	tr, err := p.svc.Translate(ctx, t.Text, t.SourceLanguage, targetLang, t.ModelType)
	if err == nil && tr == nil {
		err = errors.New("translation service returned nil")
	}
	if err != nil {
		p.log.Error().Err(err).
			Str("target", targetLang).
			Str("taskId", t.TaskID).
			Msg("translation failed")
		res := tasks.ErrorResult(t, targetLang, err)
		res.PoolType = t.Home()
		res.WorkerID = workerName
		return res
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, t.Text, t.SourceLanguage, targetLang, t.ModelType, tr.TranslatedText); err != nil {
			p.log.Debug().Err(err).Str("target", targetLang).Msg("cache write failed")
		}
	}

	src := tr.DetectedLanguage
	if src == "" {
		src = t.SourceLanguage
	}
	conf := tr.Confidence
	if conf == 0 {
		conf = tasks.DefaultConfidence
	}
	return &tasks.Result{
		MessageID:      t.MessageID,
		TranslatedText: tr.TranslatedText,
		SourceLanguage: src,
		TargetLanguage: targetLang,
		Confidence:     conf,
		ProcessingTime: time.Since(start).Seconds(),
		ModelType:      t.ModelType,
		FromCache:      false,
		PoolType:       t.Home(),
		WorkerID:       workerName,
	}
}

// ProcessBatch translates a whole batch with one inference call per target
// language and distributes results positionally. A failed language yields
// one error result per task for that language; other languages proceed.
// Returns the number of successful translations.
func (p *Processor) ProcessBatch(ctx context.Context, b *tasks.Batch, workerName string) int {
	if len(b.Tasks) == 0 {
		return 0
	}

	batchStart := time.Now()
	poolType := b.Home()
	completed := 0

	texts := make([]string, len(b.Tasks))
	for i, t := range b.Tasks {
		texts[i] = t.Text
	}

	p.log.Info().
		Str("worker", workerName).
		Int("texts", len(texts)).
		Str("source", b.SourceLanguage).
		Strs("targets", b.TargetLanguages).
		Msg("processing batch")

	for _, lang := range b.TargetLanguages {
		translated, err := p.translateBatch(ctx, texts, b.SourceLanguage, lang, b.ModelType)
		if err != nil {
			p.log.Error().Err(err).Str("target", lang).Str("batchId", b.ID).Msg("batch translation failed")
			for _, t := range b.Tasks {
				res := tasks.ErrorResult(t, lang, err)
				res.PoolType = poolType
				res.WorkerID = workerName
				p.publish(t, res)
			}
			continue
		}

		for i, t := range b.Tasks {
			p.publish(t, &tasks.Result{
				MessageID:      t.MessageID,
				TranslatedText: translated[i],
				SourceLanguage: b.SourceLanguage,
				TargetLanguage: lang,
				Confidence:     tasks.DefaultConfidence,
				ProcessingTime: time.Since(batchStart).Seconds(),
				ModelType:      b.ModelType,
				FromCache:      false,
				BatchSize:      len(b.Tasks),
				BatchIndex:     i,
				PoolType:       poolType,
				WorkerID:       workerName,
			})
			completed++
		}
	}

	elapsed := time.Since(batchStart)
	p.log.Info().
		Int("tasks", len(b.Tasks)).
		Dur("elapsed", elapsed).
		Dur("perText", elapsed/time.Duration(len(b.Tasks))).
		Msg("batch completed")

	return completed
}

// translateBatch resolves the batch capability: the backend's batch call
// when available, one call per text otherwise. The returned slice is
// always parallel to texts.
func (p *Processor) translateBatch(ctx context.Context, texts []string, sourceLang, targetLang, modelType string) ([]string, error) {
	if p.svc == nil {
		return nil, errors.New("no translation service available")
	}

	if bt, ok := p.svc.(BatchTranslator); ok {
		out, err := bt.TranslateBatch(ctx, texts, sourceLang, targetLang, modelType)
		switch {
		case err == nil:
			if len(out) != len(texts) {
				return nil, fmt.Errorf("batch returned %d translations for %d texts", len(out), len(texts))
			}
			return out, nil
		case errors.Is(err, ErrBatchUnsupported):
			// Fall through to the per-text path.
		default:
			return nil, err
		}
	}

	out := make([]string, len(texts))
	for i, text := range texts {
		tr, err := p.svc.Translate(ctx, text, sourceLang, targetLang, modelType)
		if err != nil {
			return nil, err
		}
		if tr == nil {
			return nil, errors.New("translation service returned nil")
		}
		out[i] = tr.TranslatedText
	}
	return out, nil
}
