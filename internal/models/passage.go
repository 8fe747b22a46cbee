// Package models defines core data structures for passages, queries, and retrieval results.
package models

import (
	"regexp"
	"strings"
)

// DocType classifies the source document of a passage.
type DocType string

const (
	DocTypeStatute          DocType = "statute"
	DocTypeCaseLaw          DocType = "case_law"
	DocTypeDepartmentPolicy DocType = "department_policy"
	DocTypeOther            DocType = "other"
)

// ParseDocType maps s to a known DocType. Unknown or empty values map to DocTypeOther.
func ParseDocType(s string) DocType {
	switch DocType(strings.ToLower(strings.TrimSpace(s))) {
	case DocTypeStatute:
		return DocTypeStatute
	case DocTypeCaseLaw:
		return DocTypeCaseLaw
	case DocTypeDepartmentPolicy:
		return DocTypeDepartmentPolicy
	default:
		return DocTypeOther
	}
}

// Valid reports whether d is one of the known document types.
func (d DocType) Valid() bool {
	switch d {
	case DocTypeStatute, DocTypeCaseLaw, DocTypeDepartmentPolicy, DocTypeOther:
		return true
	}
	return false
}

var statuteFilename = regexp.MustCompile(`^\d{3}\.pdf$`)

// ClassifyDocument derives a DocType from a source filename.
// Statute chapters are named like "346.pdf"; opinions contain "case" or "opinion";
// department policies contain "policy".
func ClassifyDocument(filename string) DocType {
	lower := strings.ToLower(filename)
	switch {
	case statuteFilename.MatchString(filename):
		return DocTypeStatute
	case strings.Contains(lower, "case"), strings.Contains(lower, "opinion"):
		return DocTypeCaseLaw
	case strings.Contains(lower, "policy"):
		return DocTypeDepartmentPolicy
	default:
		return DocTypeOther
	}
}

// Metadata is the citation metadata attached to an indexed passage.
// IsCrossRef and SimilarityScore are only set on retrieval output.
type Metadata struct {
	SourceFile      string  `json:"source_file" yaml:"source_file"`
	DocType         DocType `json:"doc_type" yaml:"doc_type"`
	SectionNumber   string  `json:"section_number,omitempty" yaml:"section_number,omitempty"`
	Chapter         string  `json:"chapter,omitempty" yaml:"chapter,omitempty"`
	SubChunk        int     `json:"sub_chunk,omitempty" yaml:"sub_chunk,omitempty"`
	ChunkIndex      int     `json:"chunk_index,omitempty" yaml:"chunk_index,omitempty"`
	IsCrossRef      bool    `json:"is_cross_ref,omitempty" yaml:"-"`
	SimilarityScore float64 `json:"similarity_score,omitempty" yaml:"-"`
}

// Field returns the string value of a filterable metadata key.
// The second return value is false for keys that cannot be filtered on.
func (m Metadata) Field(key string) (string, bool) {
	switch key {
	case MetaSourceFile:
		return m.SourceFile, true
	case MetaDocType:
		return string(m.DocType), true
	case MetaSectionNumber:
		return m.SectionNumber, true
	case MetaChapter:
		return m.Chapter, true
	}
	return "", false
}

// Filterable metadata keys.
const (
	MetaSourceFile    = "source_file"
	MetaDocType       = "doc_type"
	MetaSectionNumber = "section_number"
	MetaChapter       = "chapter"
)

// Passage is a unit of previously chunked legal text held by a similarity index.
type Passage struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// IdentityKey is the deduplication key of a passage: source file and section number
// when a section number is present, otherwise the storage identifier.
func (p *Passage) IdentityKey() string {
	if p.Metadata.SectionNumber != "" {
		return p.Metadata.SourceFile + "|" + p.Metadata.SectionNumber
	}
	return "id:" + p.ID
}
