package transfer

import (
	"io"

	"github.com/materials-commons/mcsync/pkg/jobrunner"
)

// progressCounter reports percent complete to the job whenever it changes.
type progressCounter struct {
	job   *jobrunner.Job
	total int64
	done  int64
	last  int
}

func (p *progressCounter) add(n int) {
	if p.total <= 0 || n <= 0 {
		return
	}

	p.done += int64(n)
	percent := int(p.done * 100 / p.total)
	if percent != p.last {
		p.last = percent
		p.job.SetProgress(percent)
	}
}

type progressWriter struct {
	w io.Writer
	progressCounter
}

func (pw *progressWriter) Write(b []byte) (int, error) {
	n, err := pw.w.Write(b)
	pw.add(n)
	return n, err
}

type progressReader struct {
	r io.Reader
	progressCounter
}

func (pr *progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	pr.add(n)
	return n, err
}
