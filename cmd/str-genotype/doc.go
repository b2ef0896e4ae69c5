// str-genotype estimates STR genotypes for one locus from per-read repeat
// lengths and SNP phasing likelihoods, learning a PCR stutter model by EM or
// applying externally supplied stutter parameters, and emits one VCF record
// with a genotype call per sample.
package main
