package dto

import "image"

// DetectionResult is the outcome of one successful cascade run.
type DetectionResult struct {
	Payload     string        // effective payload after normalisation
	Raw         string        // text exactly as the decoder produced it
	StrategyTag string        // which cascade stage hit
	Region      []image.Point // code corners in frame coordinates, nil when unknown
}
