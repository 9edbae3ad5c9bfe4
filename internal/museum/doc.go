// Package museum defines the catalog surface the workflow consumes and an
// HTTP implementation of it. The workflow only needs the change feed, the
// attachment listing, the metadata digest, and bulk download; the catalog's
// own data model stays opaque.
package museum
