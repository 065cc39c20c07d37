// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package manifest

// Parse implements spec.md §4.2 end to end: lexical pre-processing,
// per-line token classification, and requirement normalization, producing
// an unvalidated *Document. Call Validate before fetching from it.
func Parse(filename, src string) (*Document, error) {
	doc := &Document{}

	for _, ll := range preprocessLines(src) {
		pl, err := classifyLine(ll)
		if err != nil {
			return nil, err
		}
		doc.GlobalOptions = append(doc.GlobalOptions, pl.GlobalOptions...)

		if len(pl.TextTokens) == 0 {
			continue
		}

		req, err := buildRequirement(pl, filename)
		if err != nil {
			return nil, err
		}
		doc.Requirements = append(doc.Requirements, req)
	}

	return doc, nil
}
