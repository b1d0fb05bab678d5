package server

import (
	"net/http"
	"strconv"

	"krampus/internal/database"
)

func listEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := database.EventFilter{
		MachineID: query.Get("machine_id"),
		Decision:  query.Get("decision"),
	}
	if page, err := strconv.Atoi(query.Get("page")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil {
		filter.Limit = limit
	}

	events, total, err := database.ListEvents(filter)
	if err != nil {
		writeError(w, "Failed to fetch events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
	})
}

// suggestFromEvent turns a blocked execution event into a pre-filled
// proposal draft. 204 means the identifier is already covered.
func suggestFromEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, "Invalid event id", http.StatusBadRequest)
		return
	}

	event, err := database.GetEvent(id)
	if err != nil {
		writeError(w, "Failed to fetch event", http.StatusInternalServerError)
		return
	}
	if event == nil {
		writeError(w, "Event not found", http.StatusNotFound)
		return
	}

	draft, err := engine.SuggestProposal(event)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if draft == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func listMachines(w http.ResponseWriter, r *http.Request) {
	machines, err := database.ListMachines()
	if err != nil {
		writeError(w, "Failed to fetch machines", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, machines)
}
