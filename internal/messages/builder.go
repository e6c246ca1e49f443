package messages

import (
	"encoding/xml"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrMissingField is returned by XMLBuilder when a mandatory element has no value.
var ErrMissingField = errors.New("missing required field")

// Builder renders a Document into message content.
type Builder interface {
	Build(doc Document) (string, error)
}

// XMLBuilder renders structured ISO 20022 documents.
type XMLBuilder struct{}

type activeAmount struct {
	Currency string `xml:"Ccy,attr"`
	Value    string `xml:",chardata"`
}

type settlementInfo struct {
	Method string `xml:"SttlmMtd"`
}

type agent struct {
	BIC string `xml:"FinInstnId>BICFI"`
}

type party struct {
	Name string `xml:"Nm"`
}

type remittance struct {
	Unstructured string `xml:"Ustrd"`
}

type reasonInfo struct {
	AdditionalInfo string `xml:"AddtlInf"`
}

type pacs008 struct {
	XMLName  xml.Name `xml:"Document"`
	Xmlns    string   `xml:"xmlns,attr"`
	Transfer struct {
		Header struct {
			MsgID          string         `xml:"MsgId"`
			CreatedAt      string         `xml:"CreDtTm"`
			Transactions   int            `xml:"NbOfTxs"`
			Total          activeAmount   `xml:"TtlIntrBkSttlmAmt"`
			SettlementDate string         `xml:"IntrBkSttlmDt"`
			Settlement     settlementInfo `xml:"SttlmInf"`
		} `xml:"GrpHdr"`
		Tx struct {
			InstructionID string       `xml:"PmtId>InstrId"`
			EndToEndID    string       `xml:"PmtId>EndToEndId"`
			TxID          string       `xml:"PmtId>TxId"`
			Amount        activeAmount `xml:"IntrBkSttlmAmt"`
			DebtorAgent   agent        `xml:"DbtrAgt"`
			CreditorAgent agent        `xml:"CdtrAgt"`
			Debtor        party        `xml:"Dbtr"`
			Creditor      party        `xml:"Cdtr"`
			Remittance    *remittance  `xml:"RmtInf,omitempty"`
		} `xml:"CdtTrfTxInf"`
	} `xml:"FIToFICstmrCdtTrf"`
}

type pacs002 struct {
	XMLName xml.Name `xml:"Document"`
	Xmlns   string   `xml:"xmlns,attr"`
	Report  struct {
		Header struct {
			MsgID     string `xml:"MsgId"`
			CreatedAt string `xml:"CreDtTm"`
		} `xml:"GrpHdr"`
		Tx struct {
			OriginalEndToEndID string      `xml:"OrgnlEndToEndId"`
			Status             string      `xml:"TxSts"`
			Reason             *reasonInfo `xml:"StsRsnInf,omitempty"`
		} `xml:"TxInfAndSts"`
	} `xml:"FIToFIPmtStsRpt"`
}

type pacs004 struct {
	XMLName xml.Name `xml:"Document"`
	Xmlns   string   `xml:"xmlns,attr"`
	Return  struct {
		Header struct {
			MsgID          string         `xml:"MsgId"`
			CreatedAt      string         `xml:"CreDtTm"`
			Transactions   int            `xml:"NbOfTxs"`
			Total          activeAmount   `xml:"TtlRtrdIntrBkSttlmAmt"`
			SettlementDate string         `xml:"IntrBkSttlmDt"`
			Settlement     settlementInfo `xml:"SttlmInf"`
		} `xml:"GrpHdr"`
		Tx struct {
			OriginalEndToEndID string       `xml:"OrgnlEndToEndId"`
			Returned           activeAmount `xml:"RtrdIntrBkSttlmAmt"`
			Reason             *reasonInfo  `xml:"RtrRsnInf,omitempty"`
		} `xml:"TxInf"`
	} `xml:"PmtRtr"`
}

// Build validates doc and marshals the matching pacs document.
func (XMLBuilder) Build(doc Document) (string, error) {
	if err := validate(doc); err != nil {
		return "", err
	}

	var v any
	switch doc.Type {
	case TypeInstruction:
		v = buildPacs008(doc)
	case TypeStatusReport:
		v = buildPacs002(doc)
	case TypeReturn:
		v = buildPacs004(doc)
	default:
		return "", fmt.Errorf("unsupported message type %q", doc.Type)
	}

	out, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", doc.Type, err)
	}
	return xml.Header + string(out), nil
}

func validate(doc Document) error {
	s := doc.Subject
	required := map[string]string{
		"MsgId":      doc.MessageID,
		"EndToEndId": s.EndToEndID,
	}
	switch doc.Type {
	case TypeInstruction:
		required["InstrId"] = s.instructionID()
		required["DbtrAgt"] = s.DebtorBIC
		required["CdtrAgt"] = s.CreditorBIC
		required["Dbtr"] = s.DebtorName
		required["Cdtr"] = s.CreditorName
	case TypeReturn:
		required["RtrRsnInf"] = doc.Reason
	}
	var missing []string
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	if doc.Type != TypeStatusReport && !s.Amount.IsPositive() {
		return fmt.Errorf("%w: settlement amount", ErrMissingField)
	}
	return nil
}

func amountOf(doc Document) activeAmount {
	return activeAmount{Currency: doc.currency(), Value: doc.Subject.Amount.StringFixed(2)}
}

func buildPacs008(doc Document) pacs008 {
	var m pacs008
	m.Xmlns = doc.Type.Namespace()
	h := &m.Transfer.Header
	h.MsgID = doc.MessageID
	h.CreatedAt = doc.CreatedAt.Format(time.RFC3339)
	h.Transactions = 1
	h.Total = amountOf(doc)
	h.SettlementDate = doc.CreatedAt.Format(time.DateOnly)
	h.Settlement.Method = "CLRG"

	tx := &m.Transfer.Tx
	tx.InstructionID = doc.Subject.instructionID()
	tx.EndToEndID = doc.Subject.EndToEndID
	tx.TxID = doc.Subject.instructionID()
	tx.Amount = amountOf(doc)
	tx.DebtorAgent.BIC = doc.Subject.DebtorBIC
	tx.CreditorAgent.BIC = doc.Subject.CreditorBIC
	tx.Debtor.Name = doc.Subject.DebtorName
	tx.Creditor.Name = doc.Subject.CreditorName
	if doc.Subject.Remittance != "" {
		tx.Remittance = &remittance{Unstructured: doc.Subject.Remittance}
	}
	return m
}

func buildPacs002(doc Document) pacs002 {
	var m pacs002
	m.Xmlns = doc.Type.Namespace()
	m.Report.Header.MsgID = doc.MessageID
	m.Report.Header.CreatedAt = doc.CreatedAt.Format(time.RFC3339)
	m.Report.Tx.OriginalEndToEndID = doc.Subject.EndToEndID
	m.Report.Tx.Status = doc.Status()
	if !doc.Accepted && doc.Reason != "" {
		m.Report.Tx.Reason = &reasonInfo{AdditionalInfo: doc.Reason}
	}
	return m
}

func buildPacs004(doc Document) pacs004 {
	var m pacs004
	m.Xmlns = doc.Type.Namespace()
	h := &m.Return.Header
	h.MsgID = doc.MessageID
	h.CreatedAt = doc.CreatedAt.Format(time.RFC3339)
	h.Transactions = 1
	h.Total = amountOf(doc)
	h.SettlementDate = doc.CreatedAt.Format(time.DateOnly)
	h.Settlement.Method = "CLRG"

	m.Return.Tx.OriginalEndToEndID = doc.Subject.EndToEndID
	m.Return.Tx.Returned = amountOf(doc)
	if doc.Reason != "" {
		m.Return.Tx.Reason = &reasonInfo{AdditionalInfo: doc.Reason}
	}
	return m
}
