/******************************************************************************
 *
 *  Description :
 *
 *    Activity audit trail. Successful API requests are recorded
 *    asynchronously; recording failures never affect the request.
 *
 *****************************************************************************/

package main

import (
	"bytes"
	"io"
	"net/http"

	"github.com/pylonhost/pylon/server/logs"
	"github.com/pylonhost/pylon/server/store"
	t "github.com/pylonhost/pylon/server/store/types"
)

// Largest request body retained in an activity record.
const activityBodyLimit = 4096

// Wildcard names appearing in API route patterns.
var routeParamNames = []string{"serverID", "userID", "nodeID"}

// statusRecorder captures the response status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	return rec.ResponseWriter.Write(b)
}

// recordActivity wraps a handler so each 2xx response leaves an audit record.
// The record is written asynchronously and failures are logged, not surfaced.
func recordActivity(event, description string, handler http.HandlerFunc) http.HandlerFunc {
	return func(wrt http.ResponseWriter, req *http.Request) {
		props := map[string]any{
			"method": req.Method,
			"path":   req.URL.Path,
		}
		params := map[string]string{}
		for _, name := range routeParamNames {
			if val := req.PathValue(name); val != "" {
				params[name] = val
			}
		}
		if len(params) > 0 {
			props["params"] = params
		}

		// Body is captured for mutating requests only. The handler reads
		// from a replacement reader over the retained bytes.
		if req.Method != http.MethodGet && req.Body != nil {
			body, err := io.ReadAll(io.LimitReader(req.Body, activityBodyLimit))
			if err == nil && len(body) > 0 {
				props["body"] = string(body)
				req.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), req.Body))
			}
		}

		rec := &statusRecorder{ResponseWriter: wrt, status: http.StatusOK}
		handler(rec, req)

		if rec.status < 200 || rec.status > 299 {
			return
		}

		record := &t.ActivityRecord{
			Event:       event,
			Description: description,
			UserID:      requestUserID(req),
			ServerID:    req.PathValue("serverID"),
			Properties:  props,
			IPAddress:   clientIP(req),
			UserAgent:   req.UserAgent(),
		}

		go func() {
			if err := store.Activity.Create(record); err != nil {
				logs.Warn.Println("activity: failed to record", event, err)
				statsInc("ActivityRecordErrorsTotal", 1)
			} else {
				statsInc("ActivityRecordsTotal", 1)
			}
		}()
	}
}
