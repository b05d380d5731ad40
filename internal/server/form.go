package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dharsanguruparan/QMSVault/internal/model"
)

const (
	msgRequired       = "This field is required."
	msgTitleTooLong   = "Ensure this value has at most 255 characters."
	msgInvalidChoice  = "Select a valid choice. That choice is not one of the available choices."
	msgOnlyPDF        = "Only PDF files are allowed."
	msgInvalidPDF     = "Invalid file type. Please upload a valid PDF."
	msgEmptyFile      = "The submitted file is empty."
	msgReasonRequired = "Disabled reason is required when status is Disabled."

	maxTitleLength = 255
	maxFieldBytes  = 64 << 10
	// formOverhead is the body allowance on top of the file limit for the
	// text fields and multipart framing.
	formOverhead = 1 << 20
)

var (
	errTooLarge      = errors.New("file exceeds size limit")
	errEmptyFile     = errors.New("empty file")
	errMalformedForm = errors.New("malformed form")
)

type tempUpload struct {
	f           *os.File
	path        string
	size        int64
	contentType string
	filename    string
}

func (t *tempUpload) cleanup() {
	t.f.Close()
	os.Remove(t.path)
}

// documentForm is the bound and validated create/edit submission. Errors is
// keyed by field name; "file" carries upload problems.
type documentForm struct {
	Title          string
	Description    string
	DepartmentID   int64
	Status         model.DocumentStatus
	DisabledReason string
	ReaderIDs      []int64
	Errors         map[string]string

	upload *tempUpload
}

func newDocumentForm() *documentForm {
	return &documentForm{Status: model.StatusActive, Errors: map[string]string{}}
}

func formFromDocument(doc *model.Document) *documentForm {
	f := newDocumentForm()
	f.Title = doc.Title
	f.Description = doc.Description
	f.DepartmentID = doc.DepartmentID
	f.Status = doc.Status
	f.DisabledReason = doc.DisabledReason
	f.ReaderIDs = append([]int64(nil), doc.ReaderIDs...)
	return f
}

// Valid reports whether no field failed validation.
func (f *documentForm) Valid() bool { return len(f.Errors) == 0 }

// HasReader is used by the reader picker to keep selections.
func (f *documentForm) HasReader(id int64) bool {
	for _, r := range f.ReaderIDs {
		if r == id {
			return true
		}
	}
	return false
}

// fail records the first error for a field.
func (f *documentForm) fail(field, msg string) {
	if _, ok := f.Errors[field]; !ok {
		f.Errors[field] = msg
	}
}

func (f *documentForm) close() {
	if f.upload != nil {
		f.upload.cleanup()
		f.upload = nil
	}
}

func (f *documentForm) bind(values url.Values) {
	f.Title = strings.TrimSpace(values.Get("title"))
	f.Description = strings.TrimSpace(values.Get("description"))
	f.DisabledReason = strings.TrimSpace(values.Get("disabled_reason"))
	if raw := values.Get("status"); raw != "" {
		f.Status = model.DocumentStatus(raw)
	}
	if raw := strings.TrimSpace(values.Get("department")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			f.fail("department", msgInvalidChoice)
		} else {
			f.DepartmentID = id
		}
	}
	f.ReaderIDs = nil
	for _, raw := range values["readers"] {
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil || id <= 0 {
			f.fail("readers", msgInvalidChoice)
			continue
		}
		f.ReaderIDs = append(f.ReaderIDs, id)
	}
}

// validate checks the bound values against the store. A file is mandatory
// only when requireFile is set.
func (s *Server) validate(ctx context.Context, f *documentForm, requireFile bool) error {
	switch {
	case f.Title == "":
		f.fail("title", msgRequired)
	case len(f.Title) > maxTitleLength:
		f.fail("title", msgTitleTooLong)
	}
	if _, failed := f.Errors["department"]; !failed {
		if f.DepartmentID == 0 {
			f.fail("department", msgRequired)
		} else if _, err := s.store.GetDepartment(ctx, f.DepartmentID); errors.Is(err, model.ErrNotFound) {
			f.fail("department", msgInvalidChoice)
		} else if err != nil {
			return fmt.Errorf("load department: %w", err)
		}
	}
	if !f.Status.Valid() {
		f.fail("status", msgInvalidChoice)
	}
	if f.Status == model.StatusDisabled && f.DisabledReason == "" {
		f.fail("disabled_reason", msgReasonRequired)
	}
	for _, id := range f.ReaderIDs {
		if _, err := s.store.GetUser(ctx, id); errors.Is(err, model.ErrNotFound) {
			f.fail("readers", msgInvalidChoice)
			break
		} else if err != nil {
			return fmt.Errorf("load reader: %w", err)
		}
	}
	if requireFile && f.upload == nil {
		f.fail("file", msgRequired)
	}
	return nil
}

// readDocumentForm parses a multipart or urlencoded submission. The file part
// is streamed to a temp file; callers must close the form.
func (s *Server) readDocumentForm(w http.ResponseWriter, r *http.Request) (*documentForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize+formOverhead)
	form := newDocumentForm()
	mr, err := r.MultipartReader()
	switch {
	case errors.Is(err, http.ErrNotMultipart):
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("%w: %w", errMalformedForm, err)
		}
		form.bind(r.PostForm)
		return form, nil
	case err != nil:
		return nil, fmt.Errorf("%w: %w", errMalformedForm, err)
	}
	values := url.Values{}
	if err := s.readParts(mr, form, values); err != nil {
		form.close()
		return nil, err
	}
	form.bind(values)
	return form, nil
}

func (s *Server) readParts(mr *multipart.Reader, form *documentForm, values url.Values) error {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if isTooLarge(err) {
				form.fail("file", s.tooLargeMessage())
				return nil
			}
			return fmt.Errorf("%w: %w", errMalformedForm, err)
		}
		switch name := part.FormName(); {
		case name == "file":
			err = s.readFilePart(part, form)
		case name != "":
			var b strings.Builder
			if _, err = io.Copy(&b, io.LimitReader(part, maxFieldBytes)); err == nil {
				values.Add(name, b.String())
			}
		}
		part.Close()
		if err != nil {
			if isTooLarge(err) {
				form.fail("file", s.tooLargeMessage())
				return nil
			}
			return err
		}
	}
}

// readFilePart applies the upload checks in order: extension, declared type,
// size, then sniffed content.
func (s *Server) readFilePart(part *multipart.Part, form *documentForm) error {
	name := part.FileName()
	if name == "" {
		// An untouched file input still sends an empty part.
		_, _ = io.Copy(io.Discard, part)
		return nil
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		form.fail("file", msgOnlyPDF)
		_, _ = io.Copy(io.Discard, part)
		return nil
	}
	if mediaType, _, err := mime.ParseMediaType(part.Header.Get("Content-Type")); err != nil || mediaType != "application/pdf" {
		form.fail("file", msgInvalidPDF)
		_, _ = io.Copy(io.Discard, part)
		return nil
	}
	tmp, err := s.persistTemp(part)
	switch {
	case errors.Is(err, errTooLarge):
		form.fail("file", s.tooLargeMessage())
		_, _ = io.Copy(io.Discard, part)
		return nil
	case errors.Is(err, errEmptyFile):
		form.fail("file", msgEmptyFile)
		return nil
	case err != nil:
		return err
	}
	if tmp.contentType != "application/pdf" {
		tmp.cleanup()
		form.fail("file", msgInvalidPDF)
		return nil
	}
	form.close()
	form.upload = tmp
	return nil
}

func (s *Server) tooLargeMessage() string {
	return fmt.Sprintf("File too large. Max size is %dMB.", s.cfg.MaxFileSize>>20)
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || errors.Is(err, errTooLarge)
}

func (s *Server) persistTemp(part *multipart.Part) (*tempUpload, error) {
	tmpFile, err := os.CreateTemp("", "qmsvault-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	discard := func() {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
	}
	var sniff []byte
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, readErr := part.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > s.cfg.MaxFileSize {
				discard()
				return nil, errTooLarge
			}
			if len(sniff) < 512 {
				chunk := n
				if remain := 512 - len(sniff); chunk > remain {
					chunk = remain
				}
				sniff = append(sniff, buf[:chunk]...)
			}
			if _, err := tmpFile.Write(buf[:n]); err != nil {
				discard()
				return nil, fmt.Errorf("write temp file: %w", err)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			discard()
			if isTooLarge(readErr) {
				return nil, errTooLarge
			}
			return nil, fmt.Errorf("read file: %w", readErr)
		}
	}
	if written == 0 {
		discard()
		return nil, errEmptyFile
	}
	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		discard()
		return nil, fmt.Errorf("rewind temp file: %w", err)
	}
	return &tempUpload{
		f:           tmpFile,
		path:        tmpFile.Name(),
		size:        written,
		contentType: http.DetectContentType(sniff),
		filename:    filepath.Base(part.FileName()),
	}, nil
}
