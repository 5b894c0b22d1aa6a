package flatfile

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"housingcore/pkg/domain"
)

// Delimiters of the flat table format. Fields are pipe separated; repeated
// sub-records use semicolons and tuple fields use commas. Occurrences inside
// free text are backslash escaped.
const (
	fieldSep  = '|'
	listSep   = ';'
	tupleSep  = ','
	nullToken = "NULL"
)

func escapeField(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '|':
			b.WriteString(`\|`)
		case ';':
			b.WriteString(`\;`)
		case ',':
			b.WriteString(`\,`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func unescapeField(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	escaped := false
	for _, r := range s {
		if !escaped {
			if r == '\\' {
				escaped = true
				continue
			}
			b.WriteRune(r)
			continue
		}
		switch r {
		case '\\', '|', ';', ',':
			b.WriteRune(r)
		case 'n':
			b.WriteRune('\n')
		case 'r':
			b.WriteRune('\r')
		default:
			return "", fmt.Errorf("unknown escape \\%c", r)
		}
		escaped = false
	}
	if escaped {
		return "", fmt.Errorf("dangling escape at end of field")
	}
	return b.String(), nil
}

// splitEscaped splits s on sep, honouring backslash escapes. The returned
// pieces are still escaped.
func splitEscaped(s string, sep byte) []string {
	var out []string
	var start int
	escaped := false
	for i := 0; i < len(s); i++ {
		if escaped {
			escaped = false
			continue
		}
		switch s[i] {
		case '\\':
			escaped = true
		case sep:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func splitRow(line string, want int) ([]string, error) {
	raw := splitEscaped(line, fieldSep)
	if len(raw) != want {
		return nil, fmt.Errorf("expected %d fields, got %d", want, len(raw))
	}
	out := make([]string, len(raw))
	for i, field := range raw {
		decoded, err := unescapeField(field)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i+1, err)
		}
		out[i] = decoded
	}
	return out, nil
}

func joinRow(fields ...string) string {
	escaped := make([]string, len(fields))
	for i, f := range fields {
		escaped[i] = escapeField(f)
	}
	return strings.Join(escaped, string(fieldSep))
}

func encodeOptional(s *string) string {
	if s == nil {
		return nullToken
	}
	return *s
}

func decodeOptional(s string) *string {
	if s == nullToken {
		return nil
	}
	v := s
	return &v
}

func encodeList(values []string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = escapeField(v)
	}
	return strings.Join(escaped, string(listSep))
}

func decodeList(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var out []string
	for _, piece := range splitEscaped(s, listSep) {
		decoded, err := unescapeField(piece)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded)
	}
	return out, nil
}

const (
	personColumns      = "id|name|date_of_birth|marital_status|password|role|application_id|enquiry_ids|registrations|project_ids"
	projectColumns     = "id|name|visible|neighbourhood|open_date|close_date|manager_id|officer_slots|officer_ids|pending_officer_ids|offers"
	applicationColumns = "id|status|applicant_id|project_id|unit_type|prior_status"
	enquiryColumns     = "id|applicant_id|project_id|message|reply|replied_by"
	receiptColumns     = "id|application_id|applicant_id|applicant_name|project_id|project_name|unit_type|price|issued_at"
)

func columnCount(header string) int { return strings.Count(header, "|") + 1 }

func encodePerson(p domain.Person) string {
	var applicationID *string
	var enquiryIDs []string
	if p.Applicant != nil {
		applicationID = p.Applicant.ApplicationID
		enquiryIDs = p.Applicant.EnquiryIDs
	}
	var registrations []string
	if p.Officer != nil {
		for _, reg := range p.Officer.Registrations {
			registrations = append(registrations, escapeField(reg.ProjectID)+string(tupleSep)+escapeField(string(reg.Status)))
		}
	}
	var projectIDs []string
	if p.Manager != nil {
		projectIDs = p.Manager.ProjectIDs
	}
	return joinRow(
		p.ID,
		p.Name,
		p.DateOfBirth.Format(domain.DateLayout),
		string(p.MaritalStatus),
		p.Password,
		string(p.Role),
		encodeOptional(applicationID),
		encodeList(enquiryIDs),
		strings.Join(registrations, string(listSep)),
		encodeList(projectIDs),
	)
}

func decodePerson(line string) (domain.Person, error) {
	fields, err := splitRow(line, columnCount(personColumns))
	if err != nil {
		return domain.Person{}, err
	}
	dob, err := time.Parse(domain.DateLayout, fields[2])
	if err != nil {
		return domain.Person{}, fmt.Errorf("date of birth: %w", err)
	}
	person := domain.Person{
		Base:          domain.Base{ID: fields[0]},
		Name:          fields[1],
		DateOfBirth:   dob,
		MaritalStatus: domain.MaritalStatus(fields[3]),
		Password:      fields[4],
		Role:          domain.Role(fields[5]),
	}
	switch person.Role {
	case domain.RoleApplicant, domain.RoleOfficer, domain.RoleManager:
	default:
		return domain.Person{}, fmt.Errorf("unknown role %q", fields[5])
	}
	if person.CanApply() {
		enquiryIDs, err := decodeList(fields[7])
		if err != nil {
			return domain.Person{}, fmt.Errorf("enquiry ids: %w", err)
		}
		person.Applicant = &domain.ApplicantProfile{
			ApplicationID: decodeOptional(fields[6]),
			EnquiryIDs:    enquiryIDs,
		}
	}
	if person.Role == domain.RoleOfficer {
		officer := &domain.OfficerProfile{}
		if fields[8] != "" {
			for _, piece := range splitEscaped(fields[8], listSep) {
				parts := splitEscaped(piece, tupleSep)
				if len(parts) != 2 {
					return domain.Person{}, fmt.Errorf("registration %q: expected 2 parts", piece)
				}
				projectID, err := unescapeField(parts[0])
				if err != nil {
					return domain.Person{}, err
				}
				status, err := unescapeField(parts[1])
				if err != nil {
					return domain.Person{}, err
				}
				switch domain.RegistrationStatus(status) {
				case domain.RegistrationPending, domain.RegistrationApproved, domain.RegistrationRejected:
				default:
					return domain.Person{}, fmt.Errorf("unknown registration status %q", status)
				}
				officer.Registrations = append(officer.Registrations, domain.OfficerRegistration{
					ProjectID: projectID,
					Status:    domain.RegistrationStatus(status),
				})
			}
		}
		person.Officer = officer
	}
	if person.Role == domain.RoleManager {
		projectIDs, err := decodeList(fields[9])
		if err != nil {
			return domain.Person{}, fmt.Errorf("project ids: %w", err)
		}
		person.Manager = &domain.ManagerProfile{ProjectIDs: projectIDs}
	}
	return person, nil
}

func encodeProject(p domain.Project) string {
	var offers []string
	for _, offer := range p.Offers {
		offers = append(offers, strings.Join([]string{
			escapeField(string(offer.Type)),
			strconv.Itoa(offer.Total),
			strconv.Itoa(offer.Remaining),
			strconv.FormatFloat(offer.Price, 'f', -1, 64),
		}, string(tupleSep)))
	}
	return joinRow(
		p.ID,
		p.Name,
		strconv.FormatBool(p.Visible),
		p.Neighbourhood,
		p.OpenDate.Format(domain.DateLayout),
		p.CloseDate.Format(domain.DateLayout),
		p.ManagerID,
		strconv.Itoa(p.OfficerSlots),
		encodeList(p.OfficerIDs),
		encodeList(p.PendingOfficerIDs),
		strings.Join(offers, string(listSep)),
	)
}

func decodeProject(line string) (domain.Project, error) {
	fields, err := splitRow(line, columnCount(projectColumns))
	if err != nil {
		return domain.Project{}, err
	}
	visible, err := strconv.ParseBool(fields[2])
	if err != nil {
		return domain.Project{}, fmt.Errorf("visible: %w", err)
	}
	openDate, err := time.Parse(domain.DateLayout, fields[4])
	if err != nil {
		return domain.Project{}, fmt.Errorf("open date: %w", err)
	}
	closeDate, err := time.Parse(domain.DateLayout, fields[5])
	if err != nil {
		return domain.Project{}, fmt.Errorf("close date: %w", err)
	}
	slots, err := strconv.Atoi(fields[7])
	if err != nil {
		return domain.Project{}, fmt.Errorf("officer slots: %w", err)
	}
	officerIDs, err := decodeList(fields[8])
	if err != nil {
		return domain.Project{}, fmt.Errorf("officer ids: %w", err)
	}
	pendingIDs, err := decodeList(fields[9])
	if err != nil {
		return domain.Project{}, fmt.Errorf("pending officer ids: %w", err)
	}
	project := domain.Project{
		Base:              domain.Base{ID: fields[0]},
		Name:              fields[1],
		Visible:           visible,
		Neighbourhood:     fields[3],
		OpenDate:          openDate,
		CloseDate:         closeDate,
		ManagerID:         fields[6],
		OfficerSlots:      slots,
		OfficerIDs:        officerIDs,
		PendingOfficerIDs: pendingIDs,
	}
	if fields[10] != "" {
		for _, piece := range splitEscaped(fields[10], listSep) {
			parts := splitEscaped(piece, tupleSep)
			if len(parts) != 4 {
				return domain.Project{}, fmt.Errorf("offer %q: expected 4 parts", piece)
			}
			unitType, err := unescapeField(parts[0])
			if err != nil {
				return domain.Project{}, err
			}
			total, err := strconv.Atoi(parts[1])
			if err != nil {
				return domain.Project{}, fmt.Errorf("offer total: %w", err)
			}
			remaining, err := strconv.Atoi(parts[2])
			if err != nil {
				return domain.Project{}, fmt.Errorf("offer remaining: %w", err)
			}
			price, err := strconv.ParseFloat(parts[3], 64)
			if err != nil {
				return domain.Project{}, fmt.Errorf("offer price: %w", err)
			}
			project.Offers = append(project.Offers, domain.UnitOffer{
				Type:      domain.UnitType(unitType),
				Total:     total,
				Remaining: remaining,
				Price:     price,
			})
		}
	}
	return project, nil
}

func encodeApplication(a domain.Application) string {
	var prior *string
	if a.PriorStatus != nil {
		s := string(*a.PriorStatus)
		prior = &s
	}
	return joinRow(
		a.ID,
		string(a.Status),
		a.ApplicantID,
		a.ProjectID,
		string(a.UnitType),
		encodeOptional(prior),
	)
}

func decodeApplication(line string) (domain.Application, error) {
	fields, err := splitRow(line, columnCount(applicationColumns))
	if err != nil {
		return domain.Application{}, err
	}
	application := domain.Application{
		Base:        domain.Base{ID: fields[0]},
		Status:      domain.ApplicationStatus(fields[1]),
		ApplicantID: fields[2],
		ProjectID:   fields[3],
		UnitType:    domain.UnitType(fields[4]),
	}
	switch application.Status {
	case domain.StatusPending, domain.StatusSuccess, domain.StatusRejected,
		domain.StatusBooked, domain.StatusWithdrawalPending, domain.StatusWithdrawalApproved:
	default:
		return domain.Application{}, fmt.Errorf("unknown status %q", fields[1])
	}
	if prior := decodeOptional(fields[5]); prior != nil {
		status := domain.ApplicationStatus(*prior)
		switch status {
		case domain.StatusPending, domain.StatusSuccess, domain.StatusBooked:
		default:
			return domain.Application{}, fmt.Errorf("invalid prior status %q", *prior)
		}
		application.PriorStatus = &status
	}
	return application, nil
}

func encodeEnquiry(e domain.Enquiry) string {
	return joinRow(
		e.ID,
		e.ApplicantID,
		e.ProjectID,
		e.Message,
		encodeOptional(e.Reply),
		encodeOptional(e.RepliedBy),
	)
}

func decodeEnquiry(line string) (domain.Enquiry, error) {
	fields, err := splitRow(line, columnCount(enquiryColumns))
	if err != nil {
		return domain.Enquiry{}, err
	}
	return domain.Enquiry{
		Base:        domain.Base{ID: fields[0]},
		ApplicantID: fields[1],
		ProjectID:   fields[2],
		Message:     fields[3],
		Reply:       decodeOptional(fields[4]),
		RepliedBy:   decodeOptional(fields[5]),
	}, nil
}

func encodeReceipt(r domain.Receipt) string {
	return joinRow(
		r.ID,
		r.ApplicationID,
		r.ApplicantID,
		r.ApplicantName,
		r.ProjectID,
		r.ProjectName,
		string(r.UnitType),
		strconv.FormatFloat(r.Price, 'f', -1, 64),
		r.IssuedAt.Format(time.RFC3339),
	)
}

func decodeReceipt(line string) (domain.Receipt, error) {
	fields, err := splitRow(line, columnCount(receiptColumns))
	if err != nil {
		return domain.Receipt{}, err
	}
	price, err := strconv.ParseFloat(fields[7], 64)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("price: %w", err)
	}
	issuedAt, err := time.Parse(time.RFC3339, fields[8])
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("issued at: %w", err)
	}
	return domain.Receipt{
		Base:          domain.Base{ID: fields[0]},
		ApplicationID: fields[1],
		ApplicantID:   fields[2],
		ApplicantName: fields[3],
		ProjectID:     fields[4],
		ProjectName:   fields[5],
		UnitType:      domain.UnitType(fields[6]),
		Price:         price,
		IssuedAt:      issuedAt,
	}, nil
}
