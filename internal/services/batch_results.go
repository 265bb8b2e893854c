package services

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"texttools/internal/models"
)

// FetchResults downloads and reconciles the results of jobName. It returns empty
// results with no error when there is no record or the job is still running.
// Once a completed job has been processed its record is cleared, so a second
// call returns empty results.
func (s *BatchService) FetchResults(ctx context.Context, jobName string) (*models.BatchResults, error) {
	if _, err := s.Record(ctx, jobName); err != nil {
		return nil, err
	}
	v, err, _ := s.group.Do("fetch:"+jobName, func() (any, error) {
		return s.fetch(ctx, jobName)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.BatchResults), nil
}

func (s *BatchService) fetch(ctx context.Context, jobName string) (*models.BatchResults, error) {
	unlock, err := s.lockJob(ctx, jobName)
	if err != nil {
		return nil, err
	}
	defer unlock()

	results := models.NewBatchResults(jobName)
	rec, err := s.Record(ctx, jobName)
	if err != nil || rec == nil {
		return results, err
	}
	results.RemoteID = rec.RemoteID
	if err := s.checkLabels(rec); err != nil {
		return nil, err
	}

	if rec.Status.IsFailure() {
		return nil, batchFailed(rec)
	}
	if !rec.HasArtifacts() {
		if err := s.refresh(ctx, rec); err != nil {
			return nil, err
		}
		switch {
		case rec.Status.IsFailure():
			return nil, batchFailed(rec)
		case rec.Status != models.JobStatusCompleted:
			return results, nil
		}
	}

	if rec.OutputFileID != "" {
		data, err := s.provider.GetFileContent(ctx, rec.OutputFileID)
		if err != nil {
			return nil, fmt.Errorf("download output of job %s: %w", jobName, err)
		}
		if err := s.reconcileOutput(data, results); err != nil {
			jobLogger(rec).Warnf("Output artifact only partly read: %v", err)
		}
	}
	if rec.ErrorFileID != "" {
		data, err := s.provider.GetFileContent(ctx, rec.ErrorFileID)
		if err != nil {
			return nil, fmt.Errorf("download errors of job %s: %w", jobName, err)
		}
		results.RawErrors = string(data)
		if err := s.reconcileErrors(data, results); err != nil {
			jobLogger(rec).Warnf("Error artifact only partly read: %v", err)
		}
	}

	if !results.IsEmpty() {
		s.dispatcher.Dispatch(ctx, results)
	} else {
		jobLogger(rec).Info("Completed batch job produced no entries")
	}

	if err := s.states.Clear(ctx, jobName); err != nil {
		jobLogger(rec).Warnf("Failed to clear job state: %v", err)
	}
	removeTaskFile(rec.TaskFile)

	jobLogger(rec).WithFields(log.Fields{
		"entries":  results.Len(),
		"failures": len(results.Failures()),
	}).Info("Fetched batch job results")
	return results, nil
}

func batchFailed(rec *models.JobRecord) error {
	return &models.BatchFailedError{
		JobName:  rec.JobName,
		RemoteID: rec.RemoteID,
		Status:   rec.Status,
		Message:  rec.FailureMessage,
	}
}

// reconcileOutput turns every output line into an entry. A bad line becomes an
// error entry and never stops the rest.
func (s *BatchService) reconcileOutput(data []byte, results *models.BatchResults) error {
	lines, scanErr := splitLines(data)
	for _, raw := range lines {
		line, err := decodeLine(raw)
		if err != nil {
			addEntry(results, models.ResultEntry{
				CustomID: lineKey(raw.number),
				Error:    (&models.EntryParseError{Line: raw.number, Err: err}).Error(),
			})
			continue
		}
		results.Usage.Add(lineUsage(line))
		id := line.CustomID
		if id == "" {
			id = lineKey(raw.number)
		}
		if msg, failed := lineFailure(line); failed {
			addEntry(results, models.ResultEntry{CustomID: id, Error: msg})
			continue
		}
		parsedID, value, err := s.parseEntry(line)
		if err != nil {
			addEntry(results, models.ResultEntry{
				CustomID: id,
				Error:    (&models.EntryParseError{CustomID: id, Line: raw.number, Err: err}).Error(),
			})
			continue
		}
		if parsedID != "" {
			id = parsedID
		}
		addEntry(results, models.ResultEntry{CustomID: id, Value: value})
	}
	return scanErr
}

// parseEntry calls the configured parser, turning a panic into an error.
func (s *BatchService) parseEntry(line *models.ResultLine) (id string, value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parser panic: %v", r)
		}
	}()
	return s.opts.EntryParser(line)
}

// reconcileErrors attributes error artifact lines to their custom ids where the
// line decodes. Ids that already have an entry are left alone.
func (s *BatchService) reconcileErrors(data []byte, results *models.BatchResults) error {
	lines, scanErr := splitLines(data)
	for _, raw := range lines {
		line, err := decodeLine(raw)
		if err != nil || line.CustomID == "" {
			continue
		}
		if _, seen := results.Entries[line.CustomID]; seen {
			continue
		}
		msg, failed := lineFailure(line)
		if !failed {
			msg = "request failed"
		}
		results.Entries[line.CustomID] = models.ResultEntry{CustomID: line.CustomID, Error: msg}
	}
	return scanErr
}

func addEntry(results *models.BatchResults, e models.ResultEntry) {
	if _, dup := results.Entries[e.CustomID]; dup {
		log.WithField("job_name", results.JobName).Warnf("Duplicate result for %s ignored", e.CustomID)
		return
	}
	results.Entries[e.CustomID] = e
}

// IsBatchFailed reports whether err carries a remote batch failure.
func IsBatchFailed(err error) bool {
	var bf *models.BatchFailedError
	return errors.As(err, &bf)
}
