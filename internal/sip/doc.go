// Package sip wraps the two external collaborators of the submission side
// of the pipeline: the packaging tool that builds submission packages and
// the preservation service that ingests them. Packaging rules and the
// ingest protocol stay opaque; the workflow only sees artifact paths,
// submission ids, and the pending/accepted/rejected outcome.
package sip
