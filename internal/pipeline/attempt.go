package pipeline

// Attempt tracks fallback progress for one logical request. It is created
// per request and discarded when the request resolves; nothing outside the
// request ever sees it.
type Attempt struct {
	OriginalModel   string
	AttemptedModels []string
	CurrentModel    string
	Exhausted       bool
}

func NewAttempt(model string) *Attempt {
	return &Attempt{
		OriginalModel: model,
		CurrentModel:  model,
	}
}

// Record marks the current model as tried.
func (a *Attempt) Record(model string) {
	a.AttemptedModels = append(a.AttemptedModels, model)
}

// Hops is the number of fallback hops taken so far.
func (a *Attempt) Hops() int {
	if len(a.AttemptedModels) == 0 {
		return 0
	}

	return len(a.AttemptedModels) - 1
}
