package dpctests

import (
	"time"

	"github.com/dpc-contract-tests/bulkcheck/bulkexport"
	"github.com/dpc-contract-tests/bulkcheck/expect"
	"github.com/dpc-contract-tests/bulkcheck/framework"
	"github.com/dpc-contract-tests/bulkcheck/servicedef"
)

func doExportTests(t *T, roster framework.Dependency[string]) {
	rules := t.env.config.Rules

	job := step(t, "Bulk export", framework.Requires(roster), func(t *T) *bulkexport.Job {
		return doBulkExport(t, roster.Value(), servicedef.ExportParams{})
	})
	manifest := step(t, "Job result", framework.Requires(job), func(t *T) *bulkexport.Manifest {
		return doJobResult(t, job.Value(), rules.ExportExpectations())
	})

	t.RunAfter("Patient data", framework.Requires(manifest), func(t *T) {
		doOutputData(t, manifest.Value(), servicedef.TypePatient)
	})
	eob := step(t, "Eob data", framework.Requires(manifest), func(t *T) *bulkexport.DataFile {
		file := doOutputData(t, manifest.Value(), servicedef.TypeExplanationOfBenefit)
		t.Require(expect.Truthy(file.LastModified, "Last-Modified header"))
		return file
	})
	t.RunAfter("Request partial range", framework.Requires(eob), func(t *T) {
		_, err := t.bulk().FetchPartialRange(t.ctx(), eob.Value().URL, t.env.config.RangeBytes)
		t.Check(err)
	})
	t.RunAfter("Request modified since", framework.Requires(eob), func(t *T) {
		t.Check(t.bulk().FetchConditional(t.ctx(), eob.Value().URL, eob.Value().LastModified))
	})
	t.RunAfter("Coverage data", framework.Requires(manifest), func(t *T) {
		doOutputData(t, manifest.Value(), servicedef.TypeCoverage)
	})
	t.RunAfter("Operation outcome data", framework.Requires(manifest), func(t *T) {
		entry, ok := manifest.Value().FirstError()
		if !ok {
			t.Errorf("manifest has no error file")
			t.FailNow()
		}
		doVerifyFile(t, entry)
	})

	sinceJob := step(t, "Bulk export with since", framework.Requires(roster), func(t *T) *bulkexport.Job {
		return doBulkExport(t, roster.Value(), servicedef.ExportParams{Since: servicedef.SinceTime(time.Now())})
	})
	t.RunAfter("Job result with since", framework.Requires(sinceJob), func(t *T) {
		doJobResult(t, sinceJob.Value(), rules.SinceExpectations())
	})
}

func doBulkExport(t *T, rosterID string, params servicedef.ExportParams) *bulkexport.Job {
	t.RequireCapability(CapabilityExport)
	job, err := t.bulk().Submit(t.ctx(), rosterID, params)
	t.Require(err)
	return job
}

// doJobResult waits for the job to complete and verifies its manifest. A manifest whose
// response headers failed verification is still checked, so that every problem is reported.
func doJobResult(t *T, job *bulkexport.Job, exp bulkexport.Expectations) *bulkexport.Manifest {
	ctx, cancel := t.pollContext()
	defer cancel()

	manifest, err := t.bulk().Poll(ctx, job)
	if manifest == nil {
		t.Require(err)
	}
	t.Check(err)
	t.Check(bulkexport.VerifyManifest(manifest, exp))
	t.Debug("job %s finished in state %s after %d status request(s)", job.Location, job.State(), job.Polls())
	return manifest
}

func doOutputData(t *T, manifest *bulkexport.Manifest, resourceType string) *bulkexport.DataFile {
	entry, ok := manifest.OutputByType(resourceType)
	if !ok {
		t.Errorf("manifest has no %s file", resourceType)
		t.FailNow()
	}
	return doVerifyFile(t, entry)
}

func doVerifyFile(t *T, entry bulkexport.OutputEntry) *bulkexport.DataFile {
	file, err := t.bulk().FetchAndVerifyOutput(t.ctx(), entry, t.env.config.Rules.Types[entry.Type])
	if file == nil {
		t.Require(err)
	}
	t.Check(err)
	t.Debug("%s file has %d record(s)", entry.Type, len(file.Records))
	return file
}
