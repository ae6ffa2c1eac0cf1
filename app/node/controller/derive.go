package controller

import (
	"fmt"
	"net/http"

	"github.com/research-protocol/researchx/pkg/research"
)

// DerivedAddress is a program-derived address and the bump that produced it.
type DerivedAddress struct {
	Address research.Pubkey `json:"address"`
	Bump    uint8           `json:"bump"`
}

func queryKey(r *http.Request, name string) (research.Pubkey, error) {
	k, err := research.ParsePubkey(r.URL.Query().Get(name))
	if err != nil {
		return research.Pubkey{}, fmt.Errorf("%w: %s: %v", errBadRequest, name, err)
	}
	return k, nil
}

// HandleDeriveRequest answers /api/derive/request?requester=<hex>&topic=<text>.
func (c *Controller) HandleDeriveRequest(w http.ResponseWriter, r *http.Request) {
	requester, err := queryKey(r, "requester")
	if err != nil {
		c.writeError(w, err)
		return
	}
	c.writeDerived(w, func() (research.Pubkey, uint8, error) {
		return research.RequestAddress(c.App.Program.ID(), requester, r.URL.Query().Get("topic"))
	})
}

// HandleDeriveReport answers /api/derive/report?request=<hex>.
func (c *Controller) HandleDeriveReport(w http.ResponseWriter, r *http.Request) {
	request, err := queryKey(r, "request")
	if err != nil {
		c.writeError(w, err)
		return
	}
	c.writeDerived(w, func() (research.Pubkey, uint8, error) {
		return research.ReportAddress(c.App.Program.ID(), request)
	})
}

// HandleDeriveVerification answers /api/derive/verification?report=<hex>&verifier=<hex>.
func (c *Controller) HandleDeriveVerification(w http.ResponseWriter, r *http.Request) {
	report, err := queryKey(r, "report")
	if err != nil {
		c.writeError(w, err)
		return
	}
	verifier, err := queryKey(r, "verifier")
	if err != nil {
		c.writeError(w, err)
		return
	}
	c.writeDerived(w, func() (research.Pubkey, uint8, error) {
		return research.VerificationAddress(c.App.Program.ID(), report, verifier)
	})
}

func (c *Controller) writeDerived(w http.ResponseWriter, derive func() (research.Pubkey, uint8, error)) {
	addr, bump, err := derive()
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DerivedAddress{Address: addr, Bump: bump})
}
