package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/a3tai/facturx-bridge/internal/descriptions"
	"github.com/a3tai/facturx-bridge/internal/facturx"
)

// DirectoryCache provides TTL-based caching for directory contents
type DirectoryCache struct {
	entries map[string]cacheEntry
	ttl     time.Duration
	mu      sync.RWMutex
}

type cacheEntry struct {
	files      []FileInfo
	lastUpdate time.Time
}

// NewDirectoryCache creates a new directory cache with specified TTL
func NewDirectoryCache(ttl time.Duration) *DirectoryCache {
	return &DirectoryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// Get retrieves cached directory contents if still fresh
func (c *DirectoryCache) Get(path string) ([]FileInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[path]
	if !exists || time.Since(entry.lastUpdate) > c.ttl {
		return nil, false
	}
	return entry.files, true
}

// Set stores directory contents in cache
func (c *DirectoryCache) Set(path string, files []FileInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[path] = cacheEntry{files: files, lastUpdate: time.Now()}
}

// DirectoryScanner lists PDF files with depth, count and time limits
type DirectoryScanner struct {
	maxDepth  int
	fileLimit int
	timeLimit time.Duration
}

// NewDirectoryScanner creates a new bounded directory scanner
func NewDirectoryScanner(maxDepth, fileLimit int, timeLimit time.Duration) *DirectoryScanner {
	return &DirectoryScanner{
		maxDepth:  maxDepth,
		fileLimit: fileLimit,
		timeLimit: timeLimit,
	}
}

// Scan lists PDF files under root, skipping hidden entries and symlinks.
// Hitting a limit truncates the listing without an error.
func (s *DirectoryScanner) Scan(ctx context.Context, root string) ([]FileInfo, error) {
	deadline := time.Now().Add(s.timeLimit)
	files := []FileInfo{}
	err := s.scan(ctx, root, 0, deadline, &files)
	return files, err
}

func (s *DirectoryScanner) scan(ctx context.Context, dir string, depth int, deadline time.Time, files *[]FileInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if (s.maxDepth > 0 && depth >= s.maxDepth) || (s.timeLimit > 0 && time.Now().After(deadline)) {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil // Skip directories we can't read
	}

	for _, entry := range entries {
		if s.fileLimit > 0 && len(*files) >= s.fileLimit {
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".") || entry.Type()&os.ModeSymlink != 0 {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := s.scan(ctx, path, depth+1, deadline, files); err != nil {
				return err
			}
			continue
		}

		if !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		*files = append(*files, FileInfo{
			Name:         entry.Name(),
			Path:         path,
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format("2006-01-02 15:04:05"),
		})
	}
	return nil
}

// ServerInfo builds the server_info answer with a cached directory listing
type ServerInfo struct {
	service *Service
	cache   *DirectoryCache
	scanner *DirectoryScanner
}

// NewServerInfo creates a server info handler for service
func NewServerInfo(service *Service) *ServerInfo {
	return &ServerInfo{
		service: service,
		cache:   NewDirectoryCache(time.Minute),
		scanner: NewDirectoryScanner(3, 100, 3*time.Second), // max 3 levels, 100 files, 3 second limit
	}
}

// Get returns server information and the PDFs available to the tools
func (p *ServerInfo) Get(ctx context.Context, serverName, version string) (*ServerInfoResult, error) {
	dir := p.service.pathValidator.GetConfiguredDirectory()

	files, cached := p.cache.Get(dir)
	if !cached {
		scanCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		var err error
		files, err = p.scanner.Scan(scanCtx, dir)
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.cache.Set(dir, files)
	}

	profiles := make([]string, 0, len(facturx.Profiles))
	for _, profile := range facturx.Profiles {
		profiles = append(profiles, profile.String())
	}

	return &ServerInfoResult{
		ServerName:        serverName,
		Version:           version,
		DefaultDirectory:  dir,
		MaxFileSize:       p.service.maxFileSize,
		DefaultProfile:    p.service.defaultProfile.String(),
		Profiles:          profiles,
		AvailableTools:    availableTools(),
		DirectoryContents: files,
		UsageGuidance:     usageGuidance(p.service.maxFileSize, p.service.defaultProfile),
	}, nil
}

// ServerInfo returns server information and usage guidance
func (s *Service) ServerInfo(ctx context.Context, serverName, version string) (*ServerInfoResult, error) {
	return s.serverInfo.Get(ctx, serverName, version)
}

func availableTools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        descriptions.ToolGenerateXML,
			Description: "Generate the Factur-X CII XML for an invoice record",
			Usage:       "Use this tool to preview the XML and the record checks before embedding.",
			Parameters:  "invoice_data (required): invoice record as JSON, profile (optional): conformance profile",
		},
		{
			Name:        descriptions.ToolEmbed,
			Description: "Turn a PDF invoice into a Factur-X PDF/A-3 document",
			Usage:       "Use this tool once the invoice fields are confirmed. The original PDF is left untouched.",
			Parameters: "path (required): PDF inside the configured directory, invoice_data (required): invoice record as JSON, " +
				"profile (optional): conformance profile, output_path (optional): where to write the result",
		},
		{
			Name:        descriptions.ToolInspect,
			Description: "Inspect the Factur-X structure of a PDF",
			Usage:       "Use this tool to check an existing Factur-X PDF or the output of facturx_embed.",
			Parameters:  "path (required): PDF inside the configured directory",
		},
		{
			Name:        descriptions.ToolExtractFields,
			Description: "Suggest invoice fields from the text of a PDF",
			Usage:       "Use this tool to pre-fill the invoice record. Every suggestion must be confirmed.",
			Parameters:  "path (required): PDF inside the configured directory",
		},
		{
			Name:        descriptions.ToolServerInfo,
			Description: "Get server information and the PDFs available to the tools",
			Usage:       "Use this tool first to discover the configured directory and the supported profiles.",
			Parameters:  "none",
		},
	}
}

func usageGuidance(maxFileSize int64, defaultProfile facturx.Profile) string {
	return `Factur-X Server Usage Guide:

1. DISCOVER:
   - Use 'facturx_server_info' to list the PDFs in the configured directory

2. PREPARE THE RECORD:
   - Use 'facturx_extract_fields' to get suggested values from the PDF text
   - Confirm or correct every field; scanned PDFs yield no suggestions

3. CHECK THE XML:
   - Use 'facturx_generate_xml' to preview the CII XML and the record checks
   - Errors name the missing business terms (BT-1, BT-2, ...)

4. EMBED:
   - Use 'facturx_embed' to write a Factur-X PDF next to the original

5. VERIFY:
   - Use 'facturx_inspect' on the output to read back the XML and XMP

IMPORTANT NOTES:
- Paths must stay inside the configured directory
- The default profile is ` + defaultProfile.String() + `
- The server can handle files up to ` + fmt.Sprintf("%d", maxFileSize/(1024*1024)) + `MB
- The local assembler does not embed an ICC profile; strict PDF/A validators flag it`
}
