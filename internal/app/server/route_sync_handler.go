package server

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"krampus/internal/api/dto"
	"krampus/internal/config"
	"krampus/internal/database"
	"krampus/internal/domain"
)

// ruleFeedGroup collapses concurrent identical rule-download queries from a
// fleet syncing on the same schedule into one database read.
var ruleFeedGroup singleflight.Group

// decompressBody transparently inflates agent payloads. Santa compresses
// request bodies with zlib-framed deflate and sometimes omits the
// Content-Encoding header, so an unlabeled non-JSON body gets sniffed.
func decompressBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, "Failed to read body", http.StatusBadRequest)
			return
		}
		r.Body.Close()

		encoding := strings.ToLower(r.Header.Get("Content-Encoding"))
		switch encoding {
		case "deflate":
			inflated, err := inflate(body)
			if err != nil {
				writeError(w, "Failed to decompress deflate", http.StatusBadRequest)
				return
			}
			body = inflated
			r.Header.Del("Content-Encoding")
		case "gzip":
			reader, err := gzip.NewReader(bytes.NewReader(body))
			if err == nil {
				body, err = io.ReadAll(reader)
				reader.Close()
			}
			if err != nil {
				writeError(w, "Failed to decompress gzip", http.StatusBadRequest)
				return
			}
			r.Header.Del("Content-Encoding")
		case "":
			if len(body) > 0 && body[0] != '{' && body[0] != '[' {
				if inflated, err := inflate(body); err == nil {
					body = inflated
				}
			}
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

func inflate(data []byte) ([]byte, error) {
	if zr, err := zlib.NewReader(bytes.NewReader(data)); err == nil {
		inflated, err := io.ReadAll(zr)
		zr.Close()
		if err == nil {
			return inflated, nil
		}
	}
	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	return io.ReadAll(fr)
}

func preflight(w http.ResponseWriter, r *http.Request) {
	machineID := r.PathValue("machine_id")

	var req dto.PreflightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Agents may send minimal or differently framed payloads; a
		// check-in with no metadata still refreshes the sync timestamp.
		log.Debug("Preflight body not parseable", "machine", machineID, "error", err)
	}

	machine := &domain.Machine{
		MachineID:    machineID,
		SerialNumber: req.SerialNumber,
		Hostname:     req.Hostname,
		OSVersion:    req.OSVersion,
		OSBuild:      req.OSBuild,
		AgentVersion: req.AgentVersion,
		ClientMode:   strings.ToUpper(req.ClientMode),
	}
	if err := database.UpsertMachine(machine); err != nil {
		log.Error("Failed to record preflight", "machine", machineID, "error", err)
		writeError(w, "Failed to record preflight", http.StatusInternalServerError)
		return
	}

	cfg := config.GetConfig()
	writeJSON(w, http.StatusOK, dto.PreflightResponse{
		ClientMode:    cfg.ClientMode,
		BatchSize:     cfg.SyncBatchSize,
		EnableBundles: true,
	})
}

func eventUpload(w http.ResponseWriter, r *http.Request) {
	machineID := r.PathValue("machine_id")

	var req dto.EventUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Non-JSON uploads (protobuf agents) are acknowledged but not
		// stored; the agent needs a 200 to keep syncing.
		log.Warn("Discarding non-JSON event upload", "machine", machineID)
		writeJSON(w, http.StatusOK, dto.EventUploadResponse{EventUploadBundleBinaries: []string{}})
		return
	}

	events := make([]domain.Event, 0, len(req.Events))
	for _, raw := range req.Events {
		sec, frac := int64(raw.ExecutionTime), raw.ExecutionTime
		events = append(events, domain.Event{
			MachineID:     machineID,
			FileHash:      strings.ToLower(raw.FileSHA256),
			FilePath:      optional(raw.FilePath),
			Decision:      optional(raw.Decision),
			ExecutingUser: optional(raw.ExecutingUser),
			CertSHA256:    optional(strings.ToLower(raw.CertificateSHA256)),
			CertCN:        optional(raw.CertificateCN),
			SigningID:     optional(raw.SigningID),
			TeamID:        optional(raw.TeamID),
			CDHash:        optional(strings.ToLower(raw.CDHash)),
			BundleID:      optional(raw.BundleID),
			BundleName:    optional(raw.BundleName),
			BundlePath:    optional(raw.BundlePath),
			ExecutionTime: time.Unix(sec, int64((frac-float64(sec))*1e9)),
		})
	}

	if err := database.CreateEvents(events); err != nil {
		log.Error("Failed to store events", "machine", machineID, "error", err)
		writeError(w, "Failed to store events", http.StatusInternalServerError)
		return
	}

	log.Info("Events stored", "machine", machineID, "count", len(events))
	writeJSON(w, http.StatusOK, dto.EventUploadResponse{EventUploadBundleBinaries: []string{}})
}

func ruleDownload(w http.ResponseWriter, r *http.Request) {
	machineID := r.PathValue("machine_id")

	var req dto.RuleDownloadRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // cursor is optional

	cursor := uint64(0)
	if req.Cursor != "" {
		parsed, err := strconv.ParseUint(req.Cursor, 10, 64)
		if err != nil {
			writeError(w, "Invalid cursor", http.StatusBadRequest)
			return
		}
		cursor = parsed
	} else if machine, err := database.GetMachine(machineID); err == nil && machine != nil {
		cursor = machine.RuleCursor
	}

	batchSize := config.GetConfig().SyncBatchSize
	feed, err, _ := ruleFeedGroup.Do(fmt.Sprintf("%d:%d", cursor, batchSize), func() (any, error) {
		return buildRuleFeed(cursor, batchSize)
	})
	if err != nil {
		log.Error("Failed to build rule feed", "machine", machineID, "error", err)
		writeError(w, "Failed to fetch rules", http.StatusInternalServerError)
		return
	}

	response := feed.(ruleFeed)
	if response.lastID > 0 {
		if err := database.SetMachineRuleCursor(machineID, response.lastID); err != nil {
			log.Warn("Failed to advance rule cursor", "machine", machineID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, response.body)
}

type ruleFeed struct {
	body   dto.RuleDownloadResponse
	lastID uint64
}

func buildRuleFeed(cursor uint64, batchSize int) (ruleFeed, error) {
	rules, err := database.ListRulesAfter(cursor, batchSize)
	if err != nil {
		return ruleFeed{}, err
	}

	feed := ruleFeed{body: dto.RuleDownloadResponse{Rules: make([]dto.SantaRule, 0, len(rules))}}
	for _, rule := range rules {
		wire := dto.SantaRule{
			Identifier: rule.Identifier,
			Policy:     string(rule.Policy),
			RuleType:   string(rule.RuleType),
		}
		if rule.CustomMessage != nil {
			wire.CustomMessage = *rule.CustomMessage
		}
		feed.body.Rules = append(feed.body.Rules, wire)
		feed.lastID = rule.ID
	}

	// A full batch means more rules may follow; the agent comes back with
	// the cursor.
	if len(rules) == batchSize {
		feed.body.Cursor = strconv.FormatUint(feed.lastID, 10)
	}
	return feed, nil
}

func postflight(w http.ResponseWriter, r *http.Request) {
	machineID := r.PathValue("machine_id")

	if err := database.UpsertMachine(&domain.Machine{MachineID: machineID}); err != nil {
		log.Warn("Failed to record postflight", "machine", machineID, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
