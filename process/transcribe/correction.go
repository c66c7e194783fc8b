package transcribe

import (
	"context"
	"strings"

	"github.com/pedramamini/pedster/ai/openrouter"
	"github.com/pedramamini/pedster/errors"
	"github.com/pedramamini/pedster/internal/util"
)

// domainSampleLimit caps how much transcript the classification call
// sees, in runes.
const domainSampleLimit = 4000

const (
	correctedMarker = "CORRECTED TRANSCRIPT:"
	changesMarker   = "CHANGES MADE:"
)

const detectSystemPrompt = "You identify the specialized subject domain of transcripts. " +
	"Reply with a short domain label only (for example: medicine, security research, finance, general). " +
	"Reply with exactly one label and nothing else."

const correctSystemPrompt = "You fix transcription errors in domain-specific terminology. " +
	"Correct only misheard technical terms; never rephrase or summarize. " +
	"Respond in exactly this format:\n\n" +
	correctedMarker + "\n<the corrected transcript>\n\n" +
	changesMarker + "\n<one line per correction, or 'none'>"

// correct runs the two-step domain-aware correction: classify the
// domain from a sample, then rewrite domain terminology. Any error
// leaves the caller with the raw transcript.
func (p *Processor) correct(ctx context.Context, transcript string) (corrected, notes string, err error) {
	sample := util.Truncate(transcript, domainSampleLimit, "")

	var model *string
	if p.cfg.CorrectionModel != "" {
		m := p.cfg.CorrectionModel
		model = &m
	}

	domainResp, err := p.cfg.Corrector.Chat(ctx, openrouter.ChatRequest{
		SystemPrompt: detectSystemPrompt,
		UserPrompt:   "Transcript sample:\n\n" + sample,
		Model:        model,
	})
	if err != nil {
		return "", "", errors.Wrap(err, "domain detection")
	}

	domain := strings.ToLower(strings.TrimSpace(domainResp.Content))
	if domain == "" || domain == "general" {
		// Nothing specialized to correct.
		return transcript, "", nil
	}

	p.logger.Debugw("Detected transcript domain", "domain", domain)

	corrResp, err := p.cfg.Corrector.Chat(ctx, openrouter.ChatRequest{
		SystemPrompt: correctSystemPrompt,
		UserPrompt:   "Domain: " + domain + "\n\nTranscript:\n\n" + transcript,
		Model:        model,
	})
	if err != nil {
		return "", "", errors.Wrap(err, "domain correction")
	}

	corrected, notes = parseCorrection(corrResp.Content)
	if corrected == "" {
		return "", "", errors.New("correction response missing corrected transcript")
	}
	return corrected, notes, nil
}

// parseCorrection splits a correction response on its protocol markers.
func parseCorrection(response string) (transcript, notes string) {
	idx := strings.Index(response, correctedMarker)
	if idx < 0 {
		return "", ""
	}
	rest := response[idx+len(correctedMarker):]

	if changesIdx := strings.Index(rest, changesMarker); changesIdx >= 0 {
		transcript = strings.TrimSpace(rest[:changesIdx])
		notes = strings.TrimSpace(rest[changesIdx+len(changesMarker):])
		if strings.EqualFold(notes, "none") {
			notes = ""
		}
		return transcript, notes
	}
	return strings.TrimSpace(rest), ""
}
