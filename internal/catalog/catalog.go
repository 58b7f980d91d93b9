// Package catalog defines the fixed specialty catalog. Selection is
// constrained to this list so an LLM can never introduce an invented
// specialty into a pipeline.
package catalog

import (
	"fmt"
	"strings"
)

// Version identifies the catalog revision. Bump when entries change so
// that selections recorded against an old catalog are distinguishable.
const Version = "2025.1"

// Category groups specialties by role in triage.
type Category string

const (
	Generalist Category = "generalist"
	Medical    Category = "medical"
	Surgical   Category = "surgical"
)

// Specialty is one catalog entry with metadata used for relevance scoring.
type Specialty struct {
	ID               string
	DisplayName      string
	Category         Category
	EmergencyWeight  float64
	PediatricWeight  float64
	AdultWeight      float64
	ProceduralSignal float64
	Keywords         []string
}

var entries = []Specialty{
	// Generalists
	{
		ID: "emergency_medicine", DisplayName: "Emergency Medicine", Category: Generalist,
		EmergencyWeight: 1.0, PediatricWeight: 0.7, AdultWeight: 0.9, ProceduralSignal: 0.3,
		Keywords: []string{"acute", "emergency", "trauma", "unstable", "shock", "syncope", "chest pain", "stroke", "seizure", "overdose", "critical"},
	},
	{
		ID: "pediatrics", DisplayName: "Pediatrics", Category: Generalist,
		EmergencyWeight: 0.6, PediatricWeight: 1.0, AdultWeight: 0.0, ProceduralSignal: 0.1,
		Keywords: []string{"child", "infant", "newborn", "adolescent", "pediatric", "congenital", "developmental", "vaccination", "growth"},
	},
	{
		ID: "family_internal_medicine", DisplayName: "Family/Internal Medicine", Category: Generalist,
		EmergencyWeight: 0.4, PediatricWeight: 0.5, AdultWeight: 1.0, ProceduralSignal: 0.1,
		Keywords: []string{"chronic", "primary care", "preventive", "screening", "hypertension", "diabetes", "hyperlipidemia", "wellness"},
	},

	// Medical specialties
	{
		ID: "neurology", DisplayName: "Neurology", Category: Medical,
		EmergencyWeight: 0.7, PediatricWeight: 0.6, AdultWeight: 0.9, ProceduralSignal: 0.2,
		Keywords: []string{"headache", "seizure", "stroke", "weakness", "numbness", "tremor", "dementia", "multiple sclerosis", "parkinson", "neuropathy", "altered mental status", "coma"},
	},
	{
		ID: "psychiatry", DisplayName: "Psychiatry", Category: Medical,
		EmergencyWeight: 0.5, PediatricWeight: 0.6, AdultWeight: 0.9, ProceduralSignal: 0.0,
		Keywords: []string{"depression", "anxiety", "psychosis", "bipolar", "schizophrenia", "suicidal", "mania", "delusions", "hallucinations", "behavior"},
	},
	{
		ID: "dermatology", DisplayName: "Dermatology", Category: Medical,
		EmergencyWeight: 0.2, PediatricWeight: 0.6, AdultWeight: 0.8, ProceduralSignal: 0.3,
		Keywords: []string{"rash", "skin", "lesion", "pruritus", "acne", "melanoma", "psoriasis", "eczema", "dermatitis", "urticaria", "biopsy"},
	},
	{
		ID: "ophthalmology", DisplayName: "Ophthalmology", Category: Medical,
		EmergencyWeight: 0.3, PediatricWeight: 0.5, AdultWeight: 0.8, ProceduralSignal: 0.5,
		Keywords: []string{"vision", "eye", "blindness", "glaucoma", "cataract", "retina", "diplopia", "visual loss", "red eye"},
	},
	{
		ID: "ent", DisplayName: "Otolaryngology (ENT)", Category: Medical,
		EmergencyWeight: 0.3, PediatricWeight: 0.7, AdultWeight: 0.7, ProceduralSignal: 0.6,
		Keywords: []string{"ear", "nose", "throat", "hearing loss", "tinnitus", "sinusitis", "vertigo", "dysphagia", "hoarseness"},
	},
	{
		ID: "obgyn", DisplayName: "Obstetrics & Gynecology", Category: Medical,
		EmergencyWeight: 0.5, PediatricWeight: 0.0, AdultWeight: 0.9, ProceduralSignal: 0.7,
		Keywords: []string{"pregnancy", "vaginal bleeding", "pelvic pain", "menstrual", "prenatal", "labor", "delivery", "menopause", "ovarian"},
	},
	{
		ID: "cardiology", DisplayName: "Cardiology", Category: Medical,
		EmergencyWeight: 0.8, PediatricWeight: 0.4, AdultWeight: 1.0, ProceduralSignal: 0.4,
		Keywords: []string{"chest pain", "MI", "heart failure", "arrhythmia", "hypertension", "angina", "palpitations", "dyspnea", "edema", "CAD"},
	},
	{
		ID: "endocrinology", DisplayName: "Endocrinology", Category: Medical,
		EmergencyWeight: 0.5, PediatricWeight: 0.6, AdultWeight: 0.9, ProceduralSignal: 0.1,
		Keywords: []string{"diabetes", "thyroid", "hyperglycemia", "hypoglycemia", "adrenal", "pituitary", "hyperthyroid", "hypothyroid", "DKA"},
	},
	{
		ID: "gastroenterology", DisplayName: "Gastroenterology", Category: Medical,
		EmergencyWeight: 0.6, PediatricWeight: 0.5, AdultWeight: 0.9, ProceduralSignal: 0.4,
		Keywords: []string{"abdominal pain", "GI bleed", "diarrhea", "constipation", "IBD", "cirrhosis", "hepatitis", "pancreatitis", "GERD"},
	},
	{
		ID: "hematology", DisplayName: "Hematology", Category: Medical,
		EmergencyWeight: 0.6, PediatricWeight: 0.6, AdultWeight: 0.9, ProceduralSignal: 0.2,
		Keywords: []string{"anemia", "bleeding", "thrombosis", "leukemia", "lymphoma", "coagulation", "DVT", "PE", "thrombocytopenia"},
	},
	{
		ID: "infectious_disease", DisplayName: "Infectious Disease", Category: Medical,
		EmergencyWeight: 0.7, PediatricWeight: 0.7, AdultWeight: 0.9, ProceduralSignal: 0.1,
		Keywords: []string{"fever", "infection", "sepsis", "HIV", "tuberculosis", "meningitis", "pneumonia", "abscess", "bacteremia"},
	},
	{
		ID: "nephrology", DisplayName: "Nephrology", Category: Medical,
		EmergencyWeight: 0.6, PediatricWeight: 0.5, AdultWeight: 0.9, ProceduralSignal: 0.3,
		Keywords: []string{"renal failure", "dialysis", "hematuria", "proteinuria", "AKI", "CKD", "electrolyte", "hypertension", "edema"},
	},
	{
		ID: "oncology", DisplayName: "Oncology", Category: Medical,
		EmergencyWeight: 0.5, PediatricWeight: 0.5, AdultWeight: 0.9, ProceduralSignal: 0.3,
		Keywords: []string{"cancer", "tumor", "malignancy", "chemotherapy", "radiation", "metastasis", "lymphoma", "carcinoma", "mass"},
	},
	{
		ID: "pulmonology", DisplayName: "Pulmonology", Category: Medical,
		EmergencyWeight: 0.7, PediatricWeight: 0.6, AdultWeight: 0.9, ProceduralSignal: 0.3,
		Keywords: []string{"dyspnea", "cough", "COPD", "asthma", "pneumonia", "respiratory failure", "PE", "pleural effusion", "hypoxia"},
	},
	{
		ID: "rheumatology", DisplayName: "Rheumatology", Category: Medical,
		EmergencyWeight: 0.3, PediatricWeight: 0.5, AdultWeight: 0.9, ProceduralSignal: 0.2,
		Keywords: []string{"arthritis", "joint pain", "autoimmune", "lupus", "RA", "gout", "vasculitis", "connective tissue", "inflammatory"},
	},
	{
		ID: "geriatrics", DisplayName: "Geriatrics", Category: Medical,
		EmergencyWeight: 0.5, PediatricWeight: 0.0, AdultWeight: 1.0, ProceduralSignal: 0.1,
		Keywords: []string{"elderly", "dementia", "fall", "frailty", "polypharmacy", "delirium", "geriatric", "aging"},
	},
	{
		ID: "allergy_immunology", DisplayName: "Allergy & Immunology", Category: Medical,
		EmergencyWeight: 0.5, PediatricWeight: 0.7, AdultWeight: 0.7, ProceduralSignal: 0.1,
		Keywords: []string{"allergy", "anaphylaxis", "asthma", "immunodeficiency", "urticaria", "angioedema", "allergic reaction"},
	},
	{
		ID: "sleep_medicine", DisplayName: "Sleep Medicine", Category: Medical,
		EmergencyWeight: 0.2, PediatricWeight: 0.5, AdultWeight: 0.8, ProceduralSignal: 0.1,
		Keywords: []string{"insomnia", "sleep apnea", "narcolepsy", "fatigue", "snoring", "hypersomnia"},
	},
	{
		ID: "urology", DisplayName: "Urology", Category: Medical,
		EmergencyWeight: 0.5, PediatricWeight: 0.4, AdultWeight: 0.9, ProceduralSignal: 0.7,
		Keywords: []string{"urinary", "hematuria", "kidney stone", "prostate", "UTI", "incontinence", "retention", "dysuria", "testicular"},
	},
	{
		ID: "sports_medicine", DisplayName: "Sports Medicine", Category: Medical,
		EmergencyWeight: 0.3, PediatricWeight: 0.6, AdultWeight: 0.7, ProceduralSignal: 0.4,
		Keywords: []string{"sports injury", "ACL", "concussion", "fracture", "sprain", "strain", "athletic"},
	},

	// Surgical specialties
	{
		ID: "general_surgery", DisplayName: "General Surgery", Category: Surgical,
		EmergencyWeight: 0.7, PediatricWeight: 0.5, AdultWeight: 0.9, ProceduralSignal: 1.0,
		Keywords: []string{"appendicitis", "cholecystitis", "hernia", "bowel obstruction", "acute abdomen", "peritonitis", "surgical abdomen"},
	},
	{
		ID: "orthopedic_surgery", DisplayName: "Orthopedic Surgery", Category: Surgical,
		EmergencyWeight: 0.6, PediatricWeight: 0.6, AdultWeight: 0.9, ProceduralSignal: 0.9,
		Keywords: []string{"fracture", "dislocation", "joint pain", "back pain", "trauma", "bone", "ligament", "tendon"},
	},
	{
		ID: "vascular_surgery", DisplayName: "Vascular Surgery", Category: Surgical,
		EmergencyWeight: 0.8, PediatricWeight: 0.2, AdultWeight: 1.0, ProceduralSignal: 0.9,
		Keywords: []string{"aneurysm", "claudication", "ischemia", "vascular", "arterial", "venous", "AAA", "peripheral vascular"},
	},
	{
		ID: "plastic_surgery", DisplayName: "Plastic Surgery", Category: Surgical,
		EmergencyWeight: 0.3, PediatricWeight: 0.5, AdultWeight: 0.8, ProceduralSignal: 1.0,
		Keywords: []string{"reconstruction", "burn", "laceration", "cosmetic", "hand surgery", "facial trauma"},
	},
	{
		ID: "thoracic_surgery", DisplayName: "Thoracic Surgery", Category: Surgical,
		EmergencyWeight: 0.7, PediatricWeight: 0.3, AdultWeight: 0.9, ProceduralSignal: 1.0,
		Keywords: []string{"lung cancer", "esophageal", "mediastinal", "chest trauma", "pneumothorax", "empyema"},
	},
}

var byID = func() map[string]Specialty {
	m := make(map[string]Specialty, len(entries))
	for _, s := range entries {
		m[s.ID] = s
	}
	return m
}()

// All returns the complete catalog in definition order.
func All() []Specialty {
	out := make([]Specialty, len(entries))
	copy(out, entries)
	return out
}

// ByID looks up a specialty. The second return is false for unknown ids.
func ByID(id string) (Specialty, bool) {
	s, ok := byID[id]
	return s, ok
}

// IDs returns all specialty ids in definition order.
func IDs() []string {
	ids := make([]string, len(entries))
	for i, s := range entries {
		ids[i] = s.ID
	}
	return ids
}

// Validate reports whether every id is in the catalog, returning the
// invalid ones.
func Validate(ids []string) (bool, []string) {
	var invalid []string
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			invalid = append(invalid, id)
		}
	}
	return len(invalid) == 0, invalid
}

// GeneralistIDs returns the generalist subset, used as the fixed
// fallback when selection fails or hallucinates.
func GeneralistIDs() []string {
	var ids []string
	for _, s := range entries {
		if s.Category == Generalist {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// FormatForPrompt renders the catalog as one line per entry for
// inclusion in a selection prompt.
func FormatForPrompt() string {
	var sb strings.Builder
	for _, s := range entries {
		fmt.Fprintf(&sb, "- `%s`: %s (%s)\n", s.ID, s.DisplayName, s.Category)
	}
	return sb.String()
}
