package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"krampus/internal/api/dto"
	"krampus/internal/auth"
	"krampus/internal/database"
	"krampus/internal/domain"
	"krampus/internal/governance"
)

func pathID(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	return id, err == nil
}

func listProposals(w http.ResponseWriter, r *http.Request) {
	status := domain.ProposalStatus(r.URL.Query().Get("status"))

	proposals, err := database.ListProposals(status)
	if err != nil {
		writeError(w, "Failed to fetch proposals", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, proposals)
}

func getProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, "Invalid proposal id", http.StatusBadRequest)
		return
	}

	proposal, err := database.GetProposal(id)
	if err != nil {
		writeError(w, "Failed to fetch proposal", http.StatusInternalServerError)
		return
	}
	if proposal == nil {
		writeError(w, "Proposal not found", http.StatusNotFound)
		return
	}

	response := map[string]any{"proposal": proposal}
	if principal, ok := auth.GetPrincipal(r); ok {
		vote, err := database.GetUserVote(id, principal.ID)
		if err != nil {
			writeError(w, "Failed to fetch vote", http.StatusInternalServerError)
			return
		}
		if vote != nil {
			response["my_vote"] = vote.VoteType
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func createProposal(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.GetPrincipal(r)
	if !ok {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req dto.ProposalCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	proposal, err := engine.Submit(principal, governance.SubmitRequest{
		Identifier:    req.Identifier,
		RuleType:      req.RuleType,
		Policy:        req.Policy,
		CustomMessage: req.CustomMessage,
		Rationale:     req.Rationale,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, proposal)
}

func voteOnProposal(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.GetPrincipal(r)
	if !ok {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, ok := pathID(r)
	if !ok {
		writeError(w, "Invalid proposal id", http.StatusBadRequest)
		return
	}

	var req dto.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	result, err := engine.Vote(principal, id, req.Policy)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func approveProposal(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.GetPrincipal(r)
	if !ok {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, ok := pathID(r)
	if !ok {
		writeError(w, "Invalid proposal id", http.StatusBadRequest)
		return
	}

	var req dto.ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	policy := req.Policy
	if policy == "" {
		proposal, err := database.GetProposal(id)
		if err != nil {
			writeError(w, "Failed to fetch proposal", http.StatusInternalServerError)
			return
		}
		if proposal == nil {
			writeError(w, "Proposal not found", http.StatusNotFound)
			return
		}
		policy = proposal.ProposedPolicy
	}

	result, err := engine.AdminApprove(principal, id, policy)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func rejectProposal(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.GetPrincipal(r)
	if !ok {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, ok := pathID(r)
	if !ok {
		writeError(w, "Invalid proposal id", http.StatusBadRequest)
		return
	}

	result, err := engine.AdminReject(principal, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
