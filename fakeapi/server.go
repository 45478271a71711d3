// Package fakeapi is an in-memory stand-in for the export API. It implements just enough of the
// organization, practitioner, patient, roster, and export endpoints, with deterministic data, for
// the contract tests to run without a real deployment.
package fakeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dpc-contract-tests/bulkcheck/servicedef"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// BasePath is where the API is mounted.
const BasePath = "/api/v1"

// Options configures a Server. The zero value is usable.
type Options struct {
	// PendingPolls is the number of status requests an export job answers with 202 before it
	// completes.
	PendingPolls int
	// Dataset is the synthetic data. If Dataset.ClaimsPerPatient is zero, DefaultDataset is used.
	Dataset Dataset
	Logger  *zerolog.Logger
	Now     func() time.Time
}

// Server is the fake API.
type Server struct {
	echo    *echo.Echo
	store   *store
	data    Dataset
	pending int
	now     func() time.Time
	logger  zerolog.Logger
}

// New creates a Server.
func New(opts Options) *Server {
	s := &Server{
		echo:    echo.New(),
		store:   newStore(),
		pending: opts.PendingPolls,
		now:     opts.Now,
		logger:  zerolog.Nop(),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.Logger != nil {
		s.logger = *opts.Logger
	}
	s.data = opts.Dataset
	if s.data.ClaimsPerPatient == 0 {
		s.data = DefaultDataset(s.now().Add(-time.Hour))
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.handleError
	s.echo.Use(recovery(s.logger), requestLogger(s.logger))
	s.registerRoutes(s.echo.Group(BasePath))
	return s
}

func (s *Server) registerRoutes(g *echo.Group) {
	g.GET("/metadata", s.metadata)

	g.POST("/Organization/$submit", s.submitOrganization)
	g.GET("/Organization/:id", s.getOrganization)
	g.PUT("/Organization/:id", s.updateOrganization)

	g.POST("/Practitioner/$submit", s.submitPractitioners)
	g.GET("/Practitioner", s.searchPractitioners)
	g.DELETE("/Practitioner/:id", s.deletePractitioner)

	g.POST("/Patient/$submit", s.submitPatients)
	g.GET("/Patient", s.searchPatients)
	g.DELETE("/Patient/:id", s.deletePatient)
	g.GET("/Patient/:id/$everything", s.patientEverything)

	g.POST("/Group", s.createRoster)
	g.GET("/Group", s.searchRosters)
	g.GET("/Group/:id", s.getRoster)
	g.POST("/Group/:id/$add", s.addMembers)
	g.POST("/Group/:id/$remove", s.removeMembers)
	g.GET("/Group/:id/$export", s.startExport)

	g.GET("/Jobs/:id", s.jobStatus)
	g.GET("/Data/:file", s.dataFile)
}

// Handler returns the Server as an http.Handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Str("base_path", BasePath).Msg("fake API listening")
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func baseURL(c echo.Context) string {
	return fmt.Sprintf("%s://%s%s/", c.Scheme(), c.Request().Host, BasePath)
}

func fhirJSON(c echo.Context, status int, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Blob(status, servicedef.FHIRJSON, data)
}

func outcome(text string) map[string]interface{} {
	return map[string]interface{}{
		"resourceType": servicedef.TypeOperationOutcome,
		"issue": []interface{}{
			map[string]interface{}{
				"severity": "error",
				"code":     "processing",
				"details":  map[string]interface{}{"text": text},
			},
		},
	}
}

// fhirError returns an error that the error handler renders as an OperationOutcome.
func fhirError(status int, format string, args ...interface{}) error {
	return echo.NewHTTPError(status, fmt.Sprintf(format, args...))
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	text := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		text = fmt.Sprint(he.Message)
	}
	if werr := fhirJSON(c, status, outcome(text)); werr != nil {
		s.logger.Error().Err(werr).Msg("can't write error response")
	}
}

func readJSON(c echo.Context) (ldvalue.Value, error) {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return ldvalue.Null(), err
	}
	var v ldvalue.Value
	if err := json.Unmarshal(data, &v); err != nil {
		return ldvalue.Null(), err
	}
	return v, nil
}

func searchset(resources []map[string]interface{}) map[string]interface{} {
	entries := make([]interface{}, 0, len(resources))
	for _, r := range resources {
		entries = append(entries, map[string]interface{}{"resource": r})
	}
	return map[string]interface{}{
		"resourceType": "Bundle",
		"type":         "searchset",
		"total":        len(resources),
		"entry":        entries,
	}
}

func collection(resources []map[string]interface{}) map[string]interface{} {
	b := searchset(resources)
	b["type"] = "collection"
	delete(b, "total")
	return b
}

// copyResource converts a JSON value into a map that can be modified and re-encoded.
func copyResource(v interface{}) map[string]interface{} {
	var m map[string]interface{}
	switch x := v.(type) {
	case ldvalue.Value:
		m, _ = x.AsArbitraryValue().(map[string]interface{})
	case map[string]interface{}:
		m = make(map[string]interface{}, len(x))
		for k, v := range x {
			m[k] = v
		}
	}
	if m == nil {
		m = make(map[string]interface{})
	}
	return m
}

// identifierValue returns the value of the first identifier with the given system.
func identifierValue(resource ldvalue.Value, system string) string {
	ids := resource.GetByKey("identifier")
	for i := 0; i < ids.Count(); i++ {
		if ids.GetByIndex(i).GetByKey("system").StringValue() == system {
			return ids.GetByIndex(i).GetByKey("value").StringValue()
		}
	}
	return ""
}

// bundleResources returns the resources of the given type in a Bundle, or in a Bundle wrapped
// in a Parameters resource.
func bundleResources(body ldvalue.Value, resourceType string) []ldvalue.Value {
	if body.GetByKey("resourceType").StringValue() == "Parameters" {
		body = body.GetByKey("parameter").GetByIndex(0).GetByKey("resource")
	}
	var ret []ldvalue.Value
	entries := body.GetByKey("entry")
	for i := 0; i < entries.Count(); i++ {
		r := entries.GetByIndex(i).GetByKey("resource")
		if r.GetByKey("resourceType").StringValue() == resourceType {
			ret = append(ret, r)
		}
	}
	return ret
}
