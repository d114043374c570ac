package declaration

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/bloodbank/bloodbank/internal/platform/metrics"
)

var (
	ErrNotOpen         = errors.New("declaration wizard is not open")
	ErrNotFinalStep    = errors.New("declaration can only be submitted from the last step")
	ErrUnknownField    = errors.New("unknown declaration field")
	ErrFieldType       = errors.New("value kind does not match field")
	ErrInvalidValue    = errors.New("value is not an option of this field")
	ErrOptionDisabled  = errors.New("option is disabled while None is checked")
	ErrOtherNotChecked = errors.New("other is not checked")
	ErrValidation      = errors.New("declaration step is incomplete")
)

// ValidationError lists the fields that kept a step from advancing or
// submitting. It matches ErrValidation.
type ValidationError struct {
	Step   int
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("step %d: %d field(s) need an answer", e.Step, len(e.Fields))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// SubmitFunc receives the summary text when the donor confirms. Returning an
// error keeps the wizard open on the last step with its answers intact.
type SubmitFunc func(summary string) error

// Wizard walks a donor through the five declaration steps. All mutation
// goes through Reduce. It is safe for concurrent use; onSubmit runs with
// the wizard locked and must not call back into it.
type Wizard struct {
	mu       sync.Mutex
	open     bool
	step     int
	state    State
	errors   FieldErrors
	onSubmit SubmitFunc
}

func NewWizard() *Wizard {
	return &Wizard{}
}

// Open shows step 1 of an empty form.
func (w *Wizard) Open(onSubmit SubmitFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open = true
	w.step = 1
	w.state = Reduce(w.state, ResetForm{})
	w.errors = nil
	w.onSubmit = onSubmit
}

// Close discards the answers.
func (w *Wizard) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reset()
}

func (w *Wizard) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

// Step returns the current step, 1 through Steps, or 0 when closed.
func (w *Wizard) Step() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Progress returns the completion percentage derived from the step.
func (w *Wizard) Progress() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return progress(w.step)
}

func progress(step int) float64 {
	return float64(step) / Steps * 100
}

func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Clone()
}

// Errors returns the messages from the last failed Next or Submit, minus
// fields updated since.
func (w *Wizard) Errors() FieldErrors {
	w.mu.Lock()
	defer w.mu.Unlock()
	return copyErrors(w.errors)
}

// Update sets a field through the reducer and clears its error.
func (w *Wizard) Update(f Field, v FieldValue) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return ErrNotOpen
	}
	return w.update(f, v)
}

func (w *Wizard) SetText(f Field, text string) error {
	return w.Update(f, Text(text))
}

func (w *Wizard) SetAgreement(agreed bool) error {
	return w.Update(FieldAgreement, Flag(agreed))
}

// Toggle checks or unchecks a catalog tag or None on a multi-select field.
// Other tags cannot be checked while None is.
func (w *Wizard) Toggle(f Field, tag string, checked bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	cur, q, err := w.multi(f)
	if err != nil {
		return err
	}
	if !q.acceptsTag(tag) {
		return fmt.Errorf("%w: %q", ErrInvalidValue, tag)
	}
	if checked && tag != TagNone && cur.HasNone() {
		return ErrOptionDisabled
	}
	return w.update(f, cur.Toggle(tag, checked))
}

func (w *Wizard) ToggleOther(f Field, checked bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	cur, q, err := w.multi(f)
	if err != nil {
		return err
	}
	if !q.AllowOther {
		return fmt.Errorf("%w: other", ErrInvalidValue)
	}
	if checked && cur.HasNone() {
		return ErrOptionDisabled
	}
	return w.update(f, cur.ToggleOther(checked))
}

// SetOtherText updates the Other entry's text while Other is checked.
func (w *Wizard) SetOtherText(f Field, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	cur, _, err := w.multi(f)
	if err != nil {
		return err
	}
	if _, ok := cur.OtherText(); !ok {
		return ErrOtherNotChecked
	}
	return w.update(f, cur.SetOtherText(text))
}

// BlurOther is called when the Other text input loses focus.
func (w *Wizard) BlurOther(f Field) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	cur, _, err := w.multi(f)
	if err != nil {
		return err
	}
	return w.update(f, cur.BlurOther())
}

// Next validates the current step and advances. On the last step it only
// validates.
func (w *Wizard) Next() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return ErrNotOpen
	}
	step := strconv.Itoa(w.step)
	if errs := ValidateStep(w.state, w.step); errs != nil {
		w.errors = errs
		metrics.WizardTransitions.WithLabelValues(step, "blocked").Inc()
		return &ValidationError{Step: w.step, Fields: copyErrors(errs)}
	}
	w.errors = nil
	if w.step < Steps {
		w.step++
	}
	metrics.WizardTransitions.WithLabelValues(step, "advanced").Inc()
	return nil
}

// Previous goes back one step without validating.
func (w *Wizard) Previous() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return ErrNotOpen
	}
	from := w.step
	if w.step > 1 {
		w.step--
	}
	w.errors = nil
	if w.step != from {
		metrics.WizardTransitions.WithLabelValues(strconv.Itoa(from), "back").Inc()
	}
	return nil
}

// Submit validates the last step, hands the summary to onSubmit and, when
// that succeeds, resets and closes the wizard. It returns the summary.
func (w *Wizard) Submit() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return "", ErrNotOpen
	}
	if w.step != Steps {
		return "", ErrNotFinalStep
	}
	if errs := ValidateStep(w.state, Steps); errs != nil {
		w.errors = errs
		return "", &ValidationError{Step: Steps, Fields: copyErrors(errs)}
	}
	summary := Summary(w.state)
	if w.onSubmit != nil {
		if err := w.onSubmit(summary); err != nil {
			metrics.Submissions.WithLabelValues("callback_failed").Inc()
			return "", fmt.Errorf("submit declaration: %w", err)
		}
	}
	metrics.Submissions.WithLabelValues("submitted").Inc()
	w.reset()
	return summary, nil
}

// WizardSnapshot is the serializable state of a Wizard.
type WizardSnapshot struct {
	Open     bool        `json:"open"`
	Step     int         `json:"step"`
	Progress float64     `json:"progress"`
	State    State       `json:"state"`
	Errors   FieldErrors `json:"errors,omitempty"`
}

func (w *Wizard) Snapshot() WizardSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WizardSnapshot{
		Open:     w.open,
		Step:     w.step,
		Progress: progress(w.step),
		State:    w.state.Clone(),
		Errors:   copyErrors(w.errors),
	}
}

// Restore replaces the wizard's state with snap. onSubmit is not part of a
// snapshot and is supplied again here.
func (w *Wizard) Restore(snap WizardSnapshot, onSubmit SubmitFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open = snap.Open
	w.step = snap.Step
	if w.open && (w.step < 1 || w.step > Steps) {
		w.step = 1
	}
	w.state = snap.State.Clone()
	w.errors = copyErrors(snap.Errors)
	w.onSubmit = onSubmit
}

// multi and update must be called with w.mu held.

func (w *Wizard) multi(f Field) (MultiSelect, Question, error) {
	if !w.open {
		return nil, Question{}, ErrNotOpen
	}
	k, ok := f.Kind()
	if !ok {
		return nil, Question{}, fmt.Errorf("%w: %q", ErrUnknownField, f)
	}
	if k != KindMulti {
		return nil, Question{}, fmt.Errorf("%w: %s is %s", ErrFieldType, f, k)
	}
	q, _ := QuestionFor(f)
	return w.state.Multi(f), q, nil
}

func (w *Wizard) update(f Field, v FieldValue) error {
	k, ok := f.Kind()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, f)
	}
	if v == nil || v.kind() != k {
		return fmt.Errorf("%w: %s is %s", ErrFieldType, f, k)
	}
	if t, isText := v.(Text); isText {
		if q, ok := QuestionFor(f); ok && !q.accepts(string(t)) {
			return fmt.Errorf("%w: %q", ErrInvalidValue, string(t))
		}
	}
	if m, isMulti := v.(MultiSelect); isMulti {
		if err := checkMulti(f, m); err != nil {
			return err
		}
	}
	w.state = Reduce(w.state, UpdateField{Field: f, Value: v})
	delete(w.errors, f)
	return nil
}

// checkMulti enforces what Toggle guarantees for sets supplied whole:
// catalog tags only, None alone, at most one Other entry.
func checkMulti(f Field, m MultiSelect) error {
	q, _ := QuestionFor(f)
	others := 0
	for _, e := range m {
		if e.IsOther() {
			others++
			if !q.AllowOther {
				return fmt.Errorf("%w: other", ErrInvalidValue)
			}
			continue
		}
		if !q.acceptsTag(e.Tag) {
			return fmt.Errorf("%w: %q", ErrInvalidValue, e.Tag)
		}
	}
	if others > 1 {
		return fmt.Errorf("%w: more than one other entry", ErrInvalidValue)
	}
	if m.HasNone() && len(m) > 1 {
		return ErrOptionDisabled
	}
	return nil
}

func (w *Wizard) reset() {
	w.open = false
	w.step = 0
	w.state = Reduce(w.state, ResetForm{})
	w.errors = nil
	w.onSubmit = nil
}

func copyErrors(errs FieldErrors) FieldErrors {
	if len(errs) == 0 {
		return nil
	}
	out := make(FieldErrors, len(errs))
	for k, v := range errs {
		out[k] = v
	}
	return out
}
