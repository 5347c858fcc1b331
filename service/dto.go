package service

import fingerprint "github.com/high-horse/fingerprint-server"

// RosterItem is one enrolled person sent with a match request.
type RosterItem struct {
	PersonID string `json:"person_id" validate:"required"`
	Template string `json:"template" validate:"required"`
}

type MatchRequest struct {
	Probe  string       `json:"probe" validate:"required"`
	Roster []RosterItem `json:"roster" validate:"dive"`
}

// MatchResponse mirrors fingerprint.MatchResult. PersonID and Confidence are
// present only for a match, Reason only otherwise.
type MatchResponse struct {
	Outcome    fingerprint.Outcome     `json:"outcome"`
	PersonID   *string                 `json:"person_id,omitempty"`
	Confidence *float64                `json:"confidence,omitempty"`
	Reason     *string                 `json:"reason,omitempty"`
	Candidates []fingerprint.Candidate `json:"candidates,omitempty"`
	ElapsedMs  int64                   `json:"elapsed_ms"`
}

type QualityRequest struct {
	Template string `json:"template" validate:"required"`
}

type QualityResponse struct {
	Accepted      bool    `json:"accepted"`
	Score         float64 `json:"score"`
	MinutiaeCount int     `json:"minutiae_count"`
	Reason        string  `json:"reason,omitempty"`
}

type VerifyRequest struct {
	Probe     string `json:"probe" validate:"required"`
	Candidate string `json:"candidate" validate:"required"`
}

type FeaturesRequest struct {
	Template string `json:"template" validate:"required"`
}

// ExtractRequest carries a base64 image; a data URL prefix is allowed.
type ExtractRequest struct {
	Image string `json:"image" validate:"required"`
}

type ExtractResponse struct {
	Template      string  `json:"template"`
	Quality       float64 `json:"quality"`
	MinutiaeCount int     `json:"minutiae_count"`
	Accepted      bool    `json:"accepted"`
	Reason        string  `json:"reason,omitempty"`
}

func toMatchResponse(r fingerprint.MatchResult) MatchResponse {
	resp := MatchResponse{Outcome: r.Outcome, Candidates: r.Candidates}
	if r.Outcome == fingerprint.Matched {
		id, conf := r.PersonID, r.Confidence
		resp.PersonID = &id
		resp.Confidence = &conf
	} else {
		reason := r.Reason
		resp.Reason = &reason
	}
	return resp
}
