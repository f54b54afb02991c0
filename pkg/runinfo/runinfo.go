// Package runinfo builds the summary record of a run from its lab reports
// and caches it as a JSON sidecar inside the run directory.
package runinfo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cometsong/mbiome-dataplots/pkg/config"
	"github.com/cometsong/mbiome-dataplots/pkg/fsutil"
	"github.com/cometsong/mbiome-dataplots/pkg/reports"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

// Keys every complete record carries.
const (
	KeyFlowCell = "FlowCell ID"
	KeyProject  = "GT Project"
)

// Record maps display names to values. Values read back from a sidecar
// may be any JSON scalar; freshly parsed values are strings.
type Record map[string]any

// Complete reports whether the record holds both identifying keys.
func (r Record) Complete() bool {
	_, hasFlowCell := r[KeyFlowCell]
	_, hasProject := r[KeyProject]

	return hasFlowCell && hasProject
}

// Get returns the value of key formatted as a string.
func (r Record) Get(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}

	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprint(v)
}

// Keys returns the record keys sorted.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// merge copies fields into r, overriding existing keys.
func (r Record) merge(fields map[string]string) {
	for k, v := range fields {
		r[k] = v
	}
}

// Builder produces run records, reusing a cached sidecar when it is
// complete. There is no staleness check: a complete sidecar is trusted
// until someone deletes it.
type Builder struct {
	log            logrus.FieldLogger
	filename       string
	qcReportGlob   string
	runMetricsGlob string
	renames        reports.RenameTable
	owner          *fsutil.OwnerConfig
}

// NewBuilder creates a Builder from the datasets and reports config.
func NewBuilder(
	log logrus.FieldLogger,
	cfg *config.Config,
	owner *fsutil.OwnerConfig,
) *Builder {
	return &Builder{
		log:            log.WithField("component", "runinfo"),
		filename:       cfg.Datasets.RunInfoFilename,
		qcReportGlob:   cfg.Reports.QCReportGlob,
		runMetricsGlob: cfg.Reports.RunMetricsGlob,
		renames:        reports.DefaultRunMetricsRenames,
		owner:          owner,
	}
}

// SidecarPath returns the sidecar location for runDir.
func (b *Builder) SidecarPath(runDir string) string {
	return filepath.Join(runDir, b.filename)
}

// Build returns the record for runDir. A complete sidecar is returned
// as-is; otherwise both reports are parsed, merged (QC report first, run
// metrics second) and the sidecar rewritten. Failing to write the sidecar
// is reported as a diagnostic.
func (b *Builder) Build(runDir string) (Record, []reports.Diagnostic) {
	sidecar := b.SidecarPath(runDir)

	if rec, err := ReadSidecar(sidecar); err == nil && rec.Complete() {
		return rec, nil
	} else if err != nil && !os.IsNotExist(err) {
		b.log.WithError(err).WithField("path", sidecar).
			Debug("Ignoring unreadable run info sidecar")
	}

	qc := reports.ParseQCReportDir(runDir, b.qcReportGlob)
	rm := reports.ParseRunMetricsDir(runDir, b.runMetricsGlob, b.renames)

	rec := make(Record, len(qc.Fields)+len(rm.Fields))
	rec.merge(qc.Fields)
	rec.merge(rm.Fields)

	diags := make([]reports.Diagnostic, 0, len(qc.Diagnostics)+len(rm.Diagnostics))
	diags = append(diags, qc.Diagnostics...)
	diags = append(diags, rm.Diagnostics...)

	if err := WriteSidecar(sidecar, rec, b.owner); err != nil {
		diags = append(diags, reports.Diagnostic{
			Source:  sidecar,
			Message: fmt.Sprintf("writing run info: %v", err),
		})
	}

	return rec, diags
}

// ReadSidecar loads a record from path.
func ReadSidecar(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	if rec == nil {
		return nil, fmt.Errorf("decoding %s: not a JSON object", path)
	}

	return rec, nil
}

// WriteSidecar stores rec at path, replacing any previous content.
func WriteSidecar(path string, rec Record, owner *fsutil.OwnerConfig) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding run info: %w", err)
	}

	return fsutil.WriteFileAtomic(path, append(data, '\n'), 0o644, owner)
}

// Summary is the typed view of a record used by the run list and index.
type Summary struct {
	GTProject   string `mapstructure:"GT Project" json:"gt_project,omitempty"`
	FlowCell    string `mapstructure:"FlowCell ID" json:"flowcell,omitempty"`
	RunDate     string `mapstructure:"Run Date" json:"run_date,omitempty"`
	MachineID   string `mapstructure:"Machine ID" json:"machine_id,omitempty"`
	LIMSID      string `mapstructure:"LIMS ID" json:"lims_id,omitempty"`
	SeqProtocol string `mapstructure:"Sequence Protocol" json:"sequence_protocol,omitempty"`
	SampleSize  string `mapstructure:"Sample Size" json:"sample_size,omitempty"`
	FastqFiles  string `mapstructure:"Fastq Files" json:"fastq_files,omitempty"`
	ReportDate  string `mapstructure:"Date Report" json:"report_date,omitempty"`
	Q30         string `mapstructure:"Q30" json:"q30,omitempty"`
	TotalYield  string `mapstructure:"Total Yield (Gb)" json:"total_yield_gb,omitempty"`
}

// Decode converts rec into a Summary. Numbers are accepted for any field.
func Decode(rec Record) (Summary, error) {
	var s Summary

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &s,
	})
	if err != nil {
		return s, fmt.Errorf("creating decoder: %w", err)
	}

	if err := dec.Decode(map[string]any(rec)); err != nil {
		return s, fmt.Errorf("decoding run info: %w", err)
	}

	return s, nil
}
