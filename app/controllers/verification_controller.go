package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/ledger"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/quota"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/reversal"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/usercontext"
	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/verification"
)

// VerificationController serves quota, verification and usage endpoints for
// the authenticated account.
type VerificationController struct {
	verifications *verification.Service
	reversals     *reversal.Coordinator
	evaluator     *quota.Evaluator
	ledger        *ledger.Ledger
}

func NewVerificationController(verifications *verification.Service, reversals *reversal.Coordinator, evaluator *quota.Evaluator, l *ledger.Ledger) *VerificationController {
	return &VerificationController{
		verifications: verifications,
		reversals:     reversals,
		evaluator:     evaluator,
		ledger:        l,
	}
}

type createVerificationRequest struct {
	SubjectName    string `json:"subject_name"`
	SubjectEmail   string `json:"subject_email"`
	RequesterName  string `json:"requester_name"`
	RequesterEmail string `json:"requester_email"`
	Purpose        string `json:"purpose"`
}

type quotaResponse struct {
	*quota.Decision
	Source string `json:"source,omitempty"`
}

// HandleGetQuota reports whether the caller could create a verification now.
func (vc *VerificationController) HandleGetQuota(c *fiber.Ctx) error {
	d, err := vc.evaluator.Evaluate(c.UserContext(), usercontext.GetAccountID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(quotaResponse{Decision: d, Source: d.SourceKind()})
}

func (vc *VerificationController) HandleCreateVerification(c *fiber.Ctx) error {
	var req createVerificationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := vc.verifications.Create(c.UserContext(), verification.CreateInput{
		AccountID:      usercontext.GetAccountID(c),
		SubjectName:    req.SubjectName,
		SubjectEmail:   req.SubjectEmail,
		RequesterName:  req.RequesterName,
		RequesterEmail: req.RequesterEmail,
		Purpose:        req.Purpose,
		IP:             GetClientIP(c),
		UserAgent:      c.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (vc *VerificationController) HandleListVerifications(c *fiber.Ctx) error {
	list, err := vc.verifications.List(c.UserContext(), usercontext.GetAccountID(c), c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"verifications": list, "count": len(list)})
}

func (vc *VerificationController) HandleGetVerification(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid verification id")
	}
	v, err := vc.verifications.Get(c.UserContext(), id, usercontext.GetAccountID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(v)
}

// HandleCancelVerification cancels the verification and returns whether a
// credit went back to the account.
func (vc *VerificationController) HandleCancelVerification(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid verification id")
	}
	res, err := vc.reversals.Cancel(c.UserContext(), reversal.CancelRequest{
		VerificationID: id,
		AccountID:      usercontext.GetAccountID(c),
		IP:             GetClientIP(c),
		UserAgent:      c.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// HandleListUsage returns the caller's ledger history, newest first.
func (vc *VerificationController) HandleListUsage(c *fiber.Ctx) error {
	entries, err := vc.ledger.ListForAccount(c.UserContext(), usercontext.GetAccountID(c), c.QueryInt("limit", 100))
	if err != nil {
		return respondError(c, err)
	}
	active := 0
	for i := range entries {
		if !entries[i].IsReversed() {
			active++
		}
	}
	return c.JSON(fiber.Map{"entries": entries, "count": len(entries), "active": active})
}
