package server

import (
	"encoding/json"
	"net/http"

	"krampus/internal/api/dto"
	"krampus/internal/auth"
	"krampus/internal/database"
	"krampus/internal/domain"
	"krampus/internal/governance"
)

func listRules(w http.ResponseWriter, r *http.Request) {
	policy := domain.Policy(r.URL.Query().Get("policy"))
	ruleType := domain.RuleType(r.URL.Query().Get("rule_type"))

	rules, err := database.ListRules(policy, ruleType)
	if err != nil {
		writeError(w, "Failed to fetch rules", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func createRule(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.GetPrincipal(r)
	if !ok {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req dto.RuleCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	rule, err := engine.CreateRule(principal, governance.CreateRuleRequest{
		Identifier:    req.Identifier,
		RuleType:      req.RuleType,
		Policy:        req.Policy,
		CustomMessage: req.CustomMessage,
		Comment:       req.Comment,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func deleteRule(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.GetPrincipal(r)
	if !ok {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, ok := pathID(r)
	if !ok {
		writeError(w, "Invalid rule id", http.StatusBadRequest)
		return
	}

	deleted, err := engine.DeleteRule(principal, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !deleted {
		writeError(w, "Rule not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
