package messages

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

// TemplateBuilder renders a minimal, deterministic XML rendering of the same required
// fields. It is the fallback when XMLBuilder fails and never rejects a document.
type TemplateBuilder struct{}

// HTMLEscapeString emits only predefined XML entities and numeric character references.
var templateFuncs = template.FuncMap{
	"x": template.HTMLEscapeString,
}

var templates = map[Type]*template.Template{
	TypeInstruction: template.Must(template.New("pacs.008").Funcs(templateFuncs).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<Document xmlns="{{.Namespace}}">
  <FIToFICstmrCdtTrf>
    <GrpHdr>
      <MsgId>{{x .MessageID}}</MsgId>
      <CreDtTm>{{.CreatedAt}}</CreDtTm>
      <NbOfTxs>1</NbOfTxs>
      <SttlmInf><SttlmMtd>CLRG</SttlmMtd></SttlmInf>
    </GrpHdr>
    <CdtTrfTxInf>
      <PmtId>
        <InstrId>{{x .PaymentID}}</InstrId>
        <EndToEndId>{{x .EndToEndID}}</EndToEndId>
      </PmtId>
      <IntrBkSttlmAmt Ccy="{{x .Currency}}">{{.Amount}}</IntrBkSttlmAmt>
      <DbtrAgt><FinInstnId><BICFI>{{x .DebtorBIC}}</BICFI></FinInstnId></DbtrAgt>
      <CdtrAgt><FinInstnId><BICFI>{{x .CreditorBIC}}</BICFI></FinInstnId></CdtrAgt>
      <Dbtr><Nm>{{x .DebtorName}}</Nm></Dbtr>
      <Cdtr><Nm>{{x .CreditorName}}</Nm></Cdtr>
      <RmtInf><Ustrd>{{x .Remittance}}</Ustrd></RmtInf>
    </CdtTrfTxInf>
  </FIToFICstmrCdtTrf>
</Document>`)),
	TypeStatusReport: template.Must(template.New("pacs.002").Funcs(templateFuncs).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<Document xmlns="{{.Namespace}}">
  <FIToFIPmtStsRpt>
    <GrpHdr>
      <MsgId>{{x .MessageID}}</MsgId>
      <CreDtTm>{{.CreatedAt}}</CreDtTm>
    </GrpHdr>
    <TxInfAndSts>
      <OrgnlEndToEndId>{{x .EndToEndID}}</OrgnlEndToEndId>
      <TxSts>{{.Status}}</TxSts>{{if .Reason}}
      <StsRsnInf><AddtlInf>{{x .Reason}}</AddtlInf></StsRsnInf>{{end}}
    </TxInfAndSts>
  </FIToFIPmtStsRpt>
</Document>`)),
	TypeReturn: template.Must(template.New("pacs.004").Funcs(templateFuncs).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<Document xmlns="{{.Namespace}}">
  <PmtRtr>
    <GrpHdr>
      <MsgId>{{x .MessageID}}</MsgId>
      <CreDtTm>{{.CreatedAt}}</CreDtTm>
      <NbOfTxs>1</NbOfTxs>
      <SttlmInf><SttlmMtd>CLRG</SttlmMtd></SttlmInf>
    </GrpHdr>
    <TxInf>
      <OrgnlEndToEndId>{{x .EndToEndID}}</OrgnlEndToEndId>
      <RtrdIntrBkSttlmAmt Ccy="{{x .Currency}}">{{.Amount}}</RtrdIntrBkSttlmAmt>{{if .Reason}}
      <RtrRsnInf><AddtlInf>{{x .Reason}}</AddtlInf></RtrRsnInf>{{end}}
    </TxInf>
  </PmtRtr>
</Document>`)),
}

type templateData struct {
	Namespace    string
	MessageID    string
	CreatedAt    string
	PaymentID    string
	EndToEndID   string
	Currency     string
	Amount       string
	DebtorBIC    string
	CreditorBIC  string
	DebtorName   string
	CreditorName string
	Remittance   string
	Status       string
	Reason       string
}

// Build renders doc with the fixed template for its type.
func (TemplateBuilder) Build(doc Document) (string, error) {
	tmpl, ok := templates[doc.Type]
	if !ok {
		return "", fmt.Errorf("unsupported message type %q", doc.Type)
	}

	data := templateData{
		Namespace:    doc.Type.Namespace(),
		MessageID:    doc.MessageID,
		CreatedAt:    doc.CreatedAt.Format(time.RFC3339),
		PaymentID:    doc.Subject.instructionID(),
		EndToEndID:   doc.Subject.EndToEndID,
		Currency:     doc.currency(),
		Amount:       doc.Subject.Amount.StringFixed(2),
		DebtorBIC:    doc.Subject.DebtorBIC,
		CreditorBIC:  doc.Subject.CreditorBIC,
		DebtorName:   doc.Subject.DebtorName,
		CreditorName: doc.Subject.CreditorName,
		Remittance:   doc.Subject.Remittance,
		Status:       doc.Status(),
	}
	if doc.Type == TypeReturn || !doc.Accepted {
		data.Reason = doc.Reason
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", doc.Type, err)
	}
	return buf.String(), nil
}
