package engine

import (
	"context"
	"regexp"
	"strings"
)

// Built-in procedural handler references.
const (
	HandlerNoSelfMatch      = "matching.no_self_match"
	HandlerConsentPresent   = "profile.consent_present"
	HandlerNoContactDetails = "profile.no_contact_details"
)

func builtinHandlers() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		HandlerNoSelfMatch:      noSelfMatch,
		HandlerConsentPresent:   consentPresent,
		HandlerNoContactDetails: noContactDetails,
	}
}

// noSelfMatch rejects a match proposal whose candidate is the requester.
func noSelfMatch(_ context.Context, ec EvalContext, data DataView) (Verdict, error) {
	candidate, ok := data.String("candidateId")
	if !ok || candidate == "" {
		return Failed("candidateId is missing"), nil
	}
	if candidate == ec.ActorID || candidate == ec.AffectedObjectID {
		return Failed("a profile cannot be matched with itself"), nil
	}
	return Passed(), nil
}

// consentPresent requires an explicit data-processing consent flag. The
// consent key can be overridden with the "key" parameter.
func consentPresent(_ context.Context, ec EvalContext, data DataView) (Verdict, error) {
	key := "consent.dataProcessing"
	if k, ok := ec.Parameters["key"].(string); ok && k != "" {
		key = k
	}
	granted, ok := data.Bool(key)
	if !ok || !granted {
		return Failed("consent %s has not been granted", key), nil
	}
	return Passed(), nil
}

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s\-().]{7,}\d`)
)

// noContactDetails keeps e-mail addresses and phone numbers out of free text.
// The "fields" parameter narrows the inspected fields.
func noContactDetails(_ context.Context, ec EvalContext, data DataView) (Verdict, error) {
	var hits []string
	inspect := func(path, text string) {
		if emailPattern.MatchString(text) || phonePattern.MatchString(text) {
			hits = append(hits, path)
		}
	}

	fields, _ := ec.Parameters["fields"].([]any)
	if len(fields) == 0 {
		data.WalkStrings(inspect)
	}
	for _, f := range fields {
		name, ok := f.(string)
		if !ok {
			continue
		}
		if s, ok := data.String(name); ok {
			inspect(name, s)
		}
	}
	if len(hits) > 0 {
		return Failed("contact details in %s", strings.Join(hits, ", ")), nil
	}
	return Passed(), nil
}
