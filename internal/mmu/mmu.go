// Package mmu provides a minimal virtual-to-physical translation
// collaborator for the fetch stage. Real page-table walking
// is explicitly out of scope; this is a flat identity-plus-
// offset mapping, enough to exercise the translate/access_page
// contract the fetch stage relies on.
package mmu

// MMU implements core.MMU. AccessPage is passive reporting, only
// invoked when report mode is enabled.
type MMU struct {
	pageSize    uint64
	pageOffset  uint64
	reports     []PageAccess
}

// PageAccess records one AccessPage call, for tests and CLI stats.
type PageAccess struct {
	Paddr uint64
	Kind  string
}

func New(pageSize uint64) *MMU {
	if pageSize == 0 {
		pageSize = 4096
	}
	return &MMU{pageSize: pageSize}
}

// Translate maps a virtual address to a physical one. This simulator
// has no notion of distinct address spaces beyond bookkeeping, so
// translation adds a page-aligned per-asid offset (asid * pageSize *
// 1024) to the virtual address — enough to give every asid its own physical range without
// modeling real page tables.
func (m *MMU) Translate(asid int, vaddr uint64) uint64 {
	return vaddr + uint64(asid)*m.pageSize*1024
}

// AccessPage records a passive page-access event.
func (m *MMU) AccessPage(paddr uint64, kind string) {
	m.reports = append(m.reports, PageAccess{Paddr: paddr, Kind: kind})
}

// Reports returns all recorded AccessPage events, for test assertions.
func (m *MMU) Reports() []PageAccess {
	return m.reports
}
