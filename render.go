// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

// RenderFrame renders one source frame onto the target frame. The target's
// planes, representation and color space describe the desired output
// encoding; its crop selects placement. Optional stage failures disable
// their feature category and degrade; only frame validation, acquire
// failures and the final output dispatch surface as errors.
func (r *Renderer) RenderFrame(f *Frame, target *Frame, params *RenderParams) error {
	if r.closed {
		return ErrClosed
	}
	if err := validateFrame(f, "source"); err != nil {
		return err
	}
	if err := validateFrame(target, "target"); err != nil {
		return err
	}
	InferFrame(f)
	InferFrame(target)

	p := r.newPass(params)
	defer p.end()
	if err := p.acquireFrame(f); err != nil {
		return err
	}
	return p.renderOne(f, target)
}

// renderOne runs the full pipeline for a single already-acquired frame.
func (p *pass) renderOne(f *Frame, target *Frame) error {
	im, err := p.readFrame(f)
	if err != nil {
		return err
	}
	p.scaleStage(&im, f, target)
	p.colorStage(&im, f, target)
	return p.outputStage(&im, f, target)
}

// targetSize returns the output pixel dimensions.
func targetSize(target *Frame) (w, h int) {
	crop := target.CropOrFull()
	return int(crop.W() + 0.5), int(crop.H() + 0.5)
}
